package services

import (
	"context"

	"circulation/internal/domain"
	"circulation/internal/repos"

	"golang.org/x/crypto/bcrypt"
)

// AuthService issues the caller identity consumed by the circulation core.
type AuthService struct {
	Users *repos.ReaderRepo
}

func NewAuthService(users *repos.ReaderRepo) *AuthService {
	return &AuthService{Users: users}
}

func (s *AuthService) Login(ctx context.Context, sid, email, password string) (*domain.User, error) {
	u, err := s.Users.ByEmail(ctx, email)
	if err != nil || !u.Enabled {
		return nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrBadCreds
	}
	if err := s.Users.BindSession(ctx, sid, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return s.Users.UnbindSession(ctx, sid)
}

func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.User, error) {
	return s.Users.SessionUser(ctx, sid)
}
