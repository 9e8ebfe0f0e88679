package user

import (
	"context"
	"errors"
)

// UserModel a learner known to the platform
type UserModel struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
}

// ErrDuplicatedUser unique key constraint violation
var ErrDuplicatedUser = errors.New("username is already registered")

// ErrInvalidUsername blank username
var ErrInvalidUsername = errors.New("username is required")

type UserUseCase interface {
	SignUp(ctx context.Context, username string) (*UserModel, error)
	Exists(ctx context.Context, username string) (bool, error)
}

type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*UserModel, error)
	SaveUser(ctx context.Context, post *UserModel) error
	Ping(ctx context.Context) error
}
