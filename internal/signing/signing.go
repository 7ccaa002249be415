// Package signing issues and checks expiring HMAC signatures for links to
// record photos.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrInvalidSignature means the signature does not match the link.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrExpired means the link was valid but its expiry has passed.
	ErrExpired = errors.New("link expired")
)

// Query parameters carried by a signed link.
const (
	ParamExpires   = "expires"
	ParamSignature = "sig"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer keyed with secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// NewRandomSigner creates a Signer with a fresh 32-byte key.
func NewRandomSigner() (*Signer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return NewSigner(secret), nil
}

// Sign returns the hex signature binding id to an expiry.
func (s *Signer) Sign(id string, expires time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", id, expires.Unix())
	return hex.EncodeToString(mac.Sum(nil))
}

// Query returns the expires and sig parameters for a link to id valid for ttl.
func (s *Signer) Query(id string, ttl time.Duration) url.Values {
	expires := s.now().Add(ttl)
	return url.Values{
		ParamExpires:   {strconv.FormatInt(expires.Unix(), 10)},
		ParamSignature: {s.Sign(id, expires)},
	}
}

// Verify checks the parameters of a link to id.
func (s *Signer) Verify(id string, q url.Values) error {
	exp, err := strconv.ParseInt(q.Get(ParamExpires), 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	expires := time.Unix(exp, 0)
	if !hmac.Equal([]byte(s.Sign(id, expires)), []byte(q.Get(ParamSignature))) {
		return ErrInvalidSignature
	}
	if s.now().After(expires) {
		return ErrExpired
	}
	return nil
}
