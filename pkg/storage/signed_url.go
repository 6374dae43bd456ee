package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed and tampered tokens.
	ErrInvalidToken = errors.New("invalid signed token")
	// ErrTokenExpired is returned once the token's deadline has passed.
	ErrTokenExpired = errors.New("signed token expired")
)

// SignedURLSigner creates and validates time-limited tokens naming a stored object.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Grant is the content of a verified token.
type Grant struct {
	Subject   string
	Ref       string
	ExpiresAt time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token binding subject (the owning record id) to ref.
func (s *SignedURLSigner) Generate(subject, ref string) (string, time.Time, error) {
	if subject == "" || ref == "" {
		return "", time.Time{}, fmt.Errorf("subject and ref required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	encodedSubject := base64.RawURLEncoding.EncodeToString([]byte(subject))
	encodedRef := base64.RawURLEncoding.EncodeToString([]byte(ref))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{encodedSubject, ts, encodedRef, s.sign(encodedSubject, ts, encodedRef)}, ".")
	return token, expiresAt, nil
}

// Parse validates token and returns the embedded grant.
func (s *SignedURLSigner) Parse(token string) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Grant{}, ErrInvalidToken
	}
	encodedSubject, ts, encodedRef, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(encodedSubject, ts, encodedRef)), []byte(signature)) {
		return Grant{}, ErrInvalidToken
	}
	subject, err := base64.RawURLEncoding.DecodeString(encodedSubject)
	if err != nil {
		return Grant{}, ErrInvalidToken
	}
	ref, err := base64.RawURLEncoding.DecodeString(encodedRef)
	if err != nil {
		return Grant{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Grant{}, ErrInvalidToken
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return Grant{}, ErrTokenExpired
	}
	return Grant{Subject: string(subject), Ref: string(ref), ExpiresAt: expiresAt}, nil
}

func (s *SignedURLSigner) sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
