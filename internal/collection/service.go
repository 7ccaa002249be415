// Package collection implements the record and options operations behind
// the CLI and the HTTP API: creating a record from a photo, editing it,
// deleting it together with its assets, and maintaining the options.
package collection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/Waypoint/internal/assets"
	"github.com/dharsanguruparan/Waypoint/internal/geotag"
	"github.com/dharsanguruparan/Waypoint/internal/localdb"
	"github.com/dharsanguruparan/Waypoint/internal/logging"
	"github.com/dharsanguruparan/Waypoint/internal/model"
)

var (
	// ErrMandatoryField is returned by Create when a field listed in
	// Options.Mandatory is empty.
	ErrMandatoryField = errors.New("mandatory field missing")
	// ErrInvalidRating is returned for ratings outside 0..MaxRating.
	ErrInvalidRating = errors.New("rating out of range")
	// ErrUnknownField is returned by SetMandatory for names that are not
	// record fields.
	ErrUnknownField = errors.New("unknown record field")
	// ErrNoPhoto means the record has no photo attached.
	ErrNoPhoto = errors.New("record has no photo")
)

// Draft carries the user-entered values of a new record.
type Draft struct {
	Name        string
	City        string
	Coordinates model.Coordinates
	Visited     string
	Notes       string
	Rating      int
	Category    []string
}

// Patch lists the fields to change on an existing record; nil means keep.
// A non-empty Image replaces the record's photo.
type Patch struct {
	Name        *string
	City        *string
	Coordinates *model.Coordinates
	Visited     *string
	Notes       *string
	Rating      *int
	Category    *[]string
	Image       string
}

// Entry is a record together with its completeness against the current
// mandatory fields.
type Entry struct {
	model.Record
	Complete bool `json:"complete"`
}

// Service coordinates the local database and the asset store.
type Service struct {
	db     *localdb.DB
	assets *assets.Store
	log    logging.Logger
	newID  func() string
}

// New constructs a Service.
func New(db *localdb.DB, store *assets.Store, log logging.Logger) *Service {
	return &Service{db: db, assets: store, log: log, newID: uuid.NewString}
}

// Create validates d, imports the photo at imagePath (when given) as the
// record's asset and inserts the record at the end of the collection. When
// no coordinates were entered they are taken from the photo's GPS tags.
func (s *Service) Create(ctx context.Context, d Draft, imagePath string) (model.Record, error) {
	if err := checkRating(d.Rating); err != nil {
		return model.Record{}, err
	}
	opts, err := s.db.Options(ctx)
	if err != nil {
		return model.Record{}, err
	}

	r := model.Record{
		ID:          s.newID(),
		Name:        strings.TrimSpace(d.Name),
		City:        strings.TrimSpace(d.City),
		Coordinates: d.Coordinates,
		Visited:     d.Visited,
		Notes:       d.Notes,
		Rating:      d.Rating,
		Category:    normalizeTags(d.Category),
	}

	if imagePath != "" {
		path, err := s.assets.Import(imagePath, r.ID)
		if err != nil {
			return model.Record{}, fmt.Errorf("import image: %w", err)
		}
		r.Images = []string{path}
		if r.Coordinates.IsZero() {
			s.fillCoordinates(ctx, &r, path)
		}
	}

	if err := checkMandatory(r, opts.Mandatory); err != nil {
		s.discard(ctx, r)
		return model.Record{}, err
	}
	if err := s.db.Insert(ctx, r); err != nil {
		s.discard(ctx, r)
		return model.Record{}, err
	}
	s.log.Info(ctx, "record created", "id", r.ID, "name", r.Name)
	return r, nil
}

// Update applies p to the record with the given id. A new image overwrites
// the existing asset file in place so the next backup updates the same
// remote file.
func (s *Service) Update(ctx context.Context, id string, p Patch) (model.Record, error) {
	r, err := s.db.Record(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	if p.Rating != nil {
		if err := checkRating(*p.Rating); err != nil {
			return model.Record{}, err
		}
		r.Rating = *p.Rating
	}
	if p.Name != nil {
		r.Name = strings.TrimSpace(*p.Name)
	}
	if p.City != nil {
		r.City = strings.TrimSpace(*p.City)
	}
	if p.Coordinates != nil {
		r.Coordinates = *p.Coordinates
	}
	if p.Visited != nil {
		r.Visited = *p.Visited
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	if p.Category != nil {
		r.Category = normalizeTags(*p.Category)
	}
	if p.Image != "" {
		if len(r.Images) > 0 {
			err = s.assets.ImportTo(p.Image, r.Images[0])
		} else {
			var path string
			path, err = s.assets.Import(p.Image, r.ID)
			r.Images = []string{path}
		}
		if err != nil {
			return model.Record{}, fmt.Errorf("replace image: %w", err)
		}
	}

	if err := s.db.Update(ctx, r); err != nil {
		return model.Record{}, err
	}
	s.log.Info(ctx, "record updated", "id", r.ID)
	return r, nil
}

// Delete removes the record and every asset file it references.
func (s *Service) Delete(ctx context.Context, id string) error {
	r, err := s.db.Record(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(ctx, id); err != nil {
		return err
	}
	for _, p := range r.Images {
		if err := s.assets.Remove(p); err != nil {
			return err
		}
	}
	s.log.Info(ctx, "record deleted", "id", id, "assets", len(r.Images))
	return nil
}

// Get returns one record with its completeness.
func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	r, err := s.db.Record(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	opts, err := s.db.Options(ctx)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Record: r, Complete: r.Complete(opts.Mandatory)}, nil
}

// List returns the collection in order, each record flagged complete or not.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	records, err := s.db.Records(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := s.db.Options(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		out = append(out, Entry{Record: r, Complete: r.Complete(opts.Mandatory)})
	}
	return out, nil
}

// Photo returns the bytes of the record's photo.
func (s *Service) Photo(ctx context.Context, id string) ([]byte, error) {
	r, err := s.db.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(r.Images) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrNoPhoto)
	}
	return s.assets.Read(r.Images[0])
}

// Options returns the current options.
func (s *Service) Options(ctx context.Context) (model.Options, error) {
	return s.db.Options(ctx)
}

// AddCategory appends a category tag unless it is already known.
func (s *Service) AddCategory(ctx context.Context, name string) (model.Options, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Options{}, errors.New("category name is empty")
	}
	return s.updateOptions(ctx, func(o *model.Options) error {
		if !slices.Contains(o.Category, name) {
			o.Category = append(o.Category, name)
		}
		return nil
	})
}

// RemoveCategory drops a category tag from the known list. Records that
// carry the tag keep it.
func (s *Service) RemoveCategory(ctx context.Context, name string) (model.Options, error) {
	return s.updateOptions(ctx, func(o *model.Options) error {
		o.Category = slices.DeleteFunc(o.Category, func(c string) bool { return c == name })
		return nil
	})
}

// SetMandatory replaces the list of fields new records must fill in.
func (s *Service) SetMandatory(ctx context.Context, fields []string) (model.Options, error) {
	var clean []string
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !model.IsField(f) {
			return model.Options{}, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		if !slices.Contains(clean, f) {
			clean = append(clean, f)
		}
	}
	return s.updateOptions(ctx, func(o *model.Options) error {
		o.Mandatory = clean
		return nil
	})
}

func (s *Service) updateOptions(ctx context.Context, fn func(*model.Options) error) (model.Options, error) {
	opts, err := s.db.Options(ctx)
	if err != nil {
		return model.Options{}, err
	}
	if err := fn(&opts); err != nil {
		return model.Options{}, err
	}
	if err := s.db.SetOptions(ctx, opts); err != nil {
		return model.Options{}, err
	}
	return opts, nil
}

func (s *Service) fillCoordinates(ctx context.Context, r *model.Record, path string) {
	data, err := s.assets.Read(path)
	if err != nil {
		return
	}
	c, err := geotag.FromBytes(data)
	if err != nil {
		s.log.Debug(ctx, "no coordinates in photo", "path", path, "err", err)
		return
	}
	r.Coordinates = c
}

// discard removes assets imported for a record that was not stored.
func (s *Service) discard(ctx context.Context, r model.Record) {
	for _, p := range r.Images {
		if err := s.assets.Remove(p); err != nil {
			s.log.Warn(ctx, "discard asset", "path", p, "err", err)
		}
	}
}

func checkRating(rating int) error {
	if rating < 0 || rating > model.MaxRating {
		return fmt.Errorf("%w: %d", ErrInvalidRating, rating)
	}
	return nil
}

func checkMandatory(r model.Record, mandatory []string) error {
	for _, field := range mandatory {
		if !r.Filled(field) {
			return fmt.Errorf("%w: %s", ErrMandatoryField, field)
		}
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
