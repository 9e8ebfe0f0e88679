package user

import (
	"context"
	"sync"
)

// UserMemory in-process user table
type UserMemory struct {
	mu    sync.RWMutex
	users map[string]*UserModel
}

var _ UserRepository = &UserMemory{}

func NewUserMemory() *UserMemory {
	return &UserMemory{users: make(map[string]*UserModel)}
}

func (repo *UserMemory) FindByUsername(ctx context.Context, username string) (*UserModel, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	if u, ok := repo.users[username]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (repo *UserMemory) SaveUser(ctx context.Context, post *UserModel) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.users[post.Username]; ok {
		return ErrDuplicatedUser
	}
	c := *post
	repo.users[post.Username] = &c
	return nil
}

func (repo *UserMemory) Ping(ctx context.Context) error {
	return nil
}
