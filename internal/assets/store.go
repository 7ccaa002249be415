// Package assets stores the binary files (photos) records point at. Paths are
// ordinary filesystem paths; the filesystem itself is pluggable through afero
// so tests can run against memory.
package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrAssetTooLarge is returned by Import when the source exceeds the limit.
var ErrAssetTooLarge = errors.New("asset too large")

// Store reads and writes asset files under a root directory.
type Store struct {
	fs      afero.Fs
	dir     string
	maxSize int64
}

// New returns a Store on the OS filesystem rooted at dir. maxSize <= 0
// disables the import limit.
func New(dir string, maxSize int64) *Store {
	return NewWithFs(afero.NewOsFs(), dir, maxSize)
}

// NewWithFs is New with an explicit filesystem.
func NewWithFs(fs afero.Fs, dir string, maxSize int64) *Store {
	return &Store{fs: fs, dir: dir, maxSize: maxSize}
}

// Dir is the directory imported assets are placed in.
func (s *Store) Dir() string {
	return s.dir
}

// Contains reports whether p cleans to a file below the store's directory.
func (s *Store) Contains(p string) bool {
	rel, err := filepath.Rel(filepath.Clean(s.dir), filepath.Clean(p))
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Read returns the whole file at p.
func (s *Store) Read(p string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", p, err)
	}
	return data, nil
}

// Save writes data to p, creating parent directories and replacing any
// existing file. The write goes through a temporary file in the same
// directory so a reader never sees a partial asset.
func (s *Store) Save(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create asset dir: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, dir, ".asset-*")
	if err != nil {
		return fmt.Errorf("create temp asset: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write asset %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close asset %s: %w", p, err)
	}
	if err := s.fs.Rename(tmpName, p); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("rename asset %s: %w", p, err)
	}
	return nil
}

// Import copies the file at src into the store as <dir>/<id><ext> and
// returns the new path.
func (s *Store) Import(src, id string) (string, error) {
	dst := filepath.Join(s.dir, id+strings.ToLower(filepath.Ext(src)))
	if err := s.ImportTo(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// ImportTo copies the file at src over dst, enforcing the size limit.
func (s *Store) ImportTo(src, dst string) error {
	f, err := s.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.maxSize > 0 {
		r = io.LimitReader(f, s.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return fmt.Errorf("%s: %w (limit %d bytes)", src, ErrAssetTooLarge, s.maxSize)
	}
	return s.Save(dst, data)
}

// Remove deletes the file at p. A missing file is not an error.
func (s *Store) Remove(p string) error {
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove asset %s: %w", p, err)
	}
	return nil
}

// Exists reports whether a file is present at p.
func (s *Store) Exists(p string) bool {
	_, err := s.fs.Stat(p)
	return err == nil
}

// Basename is the last element of p with either separator style, which is
// how assets are named remotely.
func Basename(p string) string {
	return path.Base(strings.ReplaceAll(p, `\`, "/"))
}
