package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"

	"github.com/warden-web/warden/internal/session"
	"github.com/warden-web/warden/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NormalizeEmail lowercases the domain and runs the local part through the
// PRECIS UsernameCaseMapped profile so visually equivalent inputs resolve to
// the same account.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	local, domain, found := strings.Cut(email, "@")
	if !found {
		if mapped, err := precis.UsernameCaseMapped.String(email); err == nil {
			return mapped
		}
		return strings.ToLower(email)
	}
	if mapped, err := precis.UsernameCaseMapped.String(local); err == nil {
		local = mapped
	} else {
		local = strings.ToLower(local)
	}
	return local + "@" + strings.ToLower(domain)
}

// Authenticate validates email/password credentials. Wrong email, inactive
// account and wrong password all collapse into ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession persists the session audit record in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session audit record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// Provider adapts the service into the session layer's credentials variant.
// Bad credentials authorize to (nil, nil); only infrastructure failures are
// returned as errors.
func (s *Service) Provider() session.Provider {
	return session.CredentialsProvider{
		ID: "credentials",
		Authorize: func(ctx context.Context, creds session.Credentials) (*session.User, error) {
			user, err := s.Authenticate(ctx, creds["email"], creds["password"])
			if err != nil {
				if errors.Is(err, shared.ErrInvalidCredentials) {
					return nil, nil
				}
				return nil, err
			}
			return &session.User{
				ID:    strconv.FormatInt(user.ID, 10),
				Email: user.Email,
				Name:  user.Name,
			}, nil
		},
	}
}
