package repository

import (
	"context"

	"helpdesk/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// List returns all users, optionally filtered by role. Password hashes
	// are included; callers must strip them before serialization.
	List(ctx context.Context, role domain.Role) ([]domain.User, error)
}
