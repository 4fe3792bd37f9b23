package repository

import (
	"context"

	"chatsync/internal/domain/entity"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Upsert(ctx context.Context, user *entity.User) error
	Search(ctx context.Context, query string, limit int) ([]*entity.User, error)
}
