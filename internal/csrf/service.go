// Package csrf layers anti-forgery policy over the token primitive and binds
// it into the HTTP request/response cycle: one token per client, carried in a
// cookie and echoed through a response header, validated on write methods.
package csrf

import (
	"sync"

	"github.com/warden-web/warden/internal/shared"
	"github.com/warden-web/warden/internal/token"
)

// ServiceConfig overrides the token defaults. Secret is mandatory.
type ServiceConfig struct {
	Secret     string
	Algorithm  token.Algorithm
	ByteLength int
	Separator  string
	Serializer token.Serializer
}

// Service issues and checks CSRF tokens with fixed policy defaults:
// HMAC-SHA256, 32 random bytes, "." separator. The key is derived lazily on
// first use and reused for the process lifetime.
type Service struct {
	cfg ServiceConfig

	once   sync.Once
	key    *token.Key
	keyErr error
}

// NewService merges cfg onto the defaults. An empty secret is a deployment
// misconfiguration and fails immediately.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Secret == "" {
		return nil, shared.NewConfigError("csrf: secret must not be empty")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = token.SHA256
	}
	if cfg.ByteLength == 0 {
		cfg.ByteLength = token.DefaultByteLength
	}
	if cfg.Separator == "" {
		cfg.Separator = token.DefaultSeparator
	}
	return &Service{cfg: cfg}, nil
}

func (s *Service) signingKey() (*token.Key, error) {
	s.once.Do(func() {
		s.key, s.keyErr = token.DeriveKey(s.cfg.Secret, s.cfg.Algorithm)
	})
	return s.key, s.keyErr
}

func (s *Service) opts() token.Options {
	return token.Options{
		ByteLength: s.cfg.ByteLength,
		Separator:  s.cfg.Separator,
		Serializer: s.cfg.Serializer,
	}
}

// Generate mints a fresh token.
func (s *Service) Generate() (string, error) {
	key, err := s.signingKey()
	if err != nil {
		return "", err
	}
	return key.Generate(s.opts())
}

// GenerateBound mints a token bound to caller context such as a session id.
func (s *Service) GenerateBound(data any) (string, error) {
	key, err := s.signingKey()
	if err != nil {
		return "", err
	}
	return key.GenerateBound(data, s.opts())
}

// Verify reports whether tok is authentic. Malformed tokens answer false.
func (s *Service) Verify(tok string) bool {
	key, err := s.signingKey()
	if err != nil {
		return false
	}
	return key.Verify(tok, s.opts())
}

// VerifyBound reports whether tok is authentic for the given bound data.
func (s *Service) VerifyBound(tok string, data any) bool {
	key, err := s.signingKey()
	if err != nil {
		return false
	}
	return key.VerifyBound(tok, data, s.opts())
}
