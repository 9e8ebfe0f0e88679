package user

import (
	"context"
	"strings"
	"time"

	"github.com/pot-code/learnsync/internal/infrastructure/uuid"
	"github.com/pot-code/learnsync/internal/progress"
	"go.elastic.co/apm"
)

// UserUseCaseImpl ...
type UserUseCaseImpl struct {
	UserRepository UserRepository
	UUIDGenerator  uuid.Generator
}

var (
	_ UserUseCase            = &UserUseCaseImpl{}
	_ progress.UserDirectory = &UserUseCaseImpl{}
)

// NewUserUseCase ...
func NewUserUseCase(
	UserRepository UserRepository,
	UUIDGenerator uuid.Generator,
) *UserUseCaseImpl {
	return &UserUseCaseImpl{
		UserRepository: UserRepository,
		UUIDGenerator:  UUIDGenerator,
	}
}

// SignUp create a user
func (uu *UserUseCaseImpl) SignUp(ctx context.Context, username string) (*UserModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UserUseCaseImpl.SignUp", "service")
	defer apmSpan.End()

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}

	ur := uu.UserRepository
	// search for existence
	if m, err := ur.FindByUsername(ctx, username); err != nil {
		return nil, err
	} else if m != nil {
		return nil, ErrDuplicatedUser
	}

	id, err := uu.UUIDGenerator.Generate()
	if err != nil {
		return nil, err
	}
	post := &UserModel{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now().UnixNano() / int64(time.Millisecond),
	}
	if err := ur.SaveUser(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Exists find if user exists in database
func (uu *UserUseCaseImpl) Exists(ctx context.Context, username string) (bool, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UserUseCaseImpl.Exists", "service")
	defer apmSpan.End()

	user, err := uu.UserRepository.FindByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// Resolve implements progress.UserDirectory
func (uu *UserUseCaseImpl) Resolve(ctx context.Context, username string) (bool, error) {
	return uu.Exists(ctx, username)
}

// Seed registers usernames that are not known yet
func (uu *UserUseCaseImpl) Seed(ctx context.Context, usernames []string) error {
	for _, name := range usernames {
		if _, err := uu.SignUp(ctx, name); err != nil && err != ErrDuplicatedUser {
			return err
		}
	}
	return nil
}
