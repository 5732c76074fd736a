package services

import (
	"context"
	"database/sql"
	"errors"

	"circulation/internal/domain"
	"circulation/internal/repos"
)

// PolicyService resolves a reader's borrowing policy from the reader type.
type PolicyService struct {
	Readers *repos.ReaderRepo
}

func NewPolicyService(readers *repos.ReaderRepo) *PolicyService {
	return &PolicyService{Readers: readers}
}

// Resolve returns ErrPolicyNotFound when the reader has no usable reader type.
func (s *PolicyService) Resolve(ctx context.Context, readerID string) (domain.Policy, error) {
	p, err := s.Readers.PolicyFor(ctx, readerID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Policy{}, ErrPolicyNotFound
	}
	if err != nil {
		return domain.Policy{}, err
	}
	return p, nil
}
