package usecase

import (
	"context"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// IdentityService is the slice of the auth collaborator the directory
// sync needs.
type IdentityService interface {
	GetUserDisplayName(ctx context.Context, uid string) (displayName, photoURL string, err error)
}

type UserUseCase struct {
	userRepo repository.UserRepository
	identity IdentityService
}

func NewUserUseCase(userRepo repository.UserRepository, identity IdentityService) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
		identity: identity,
	}
}

// EnsureProfile mirrors the auth record into the user directory so inbox
// lookups can resolve display names. Called on session start.
func (uc *UserUseCase) EnsureProfile(ctx context.Context, uid string) (*entity.User, error) {
	if uid == "" {
		return nil, errors.BadRequest("User id is required", nil)
	}

	displayName, photoURL, err := uc.identity.GetUserDisplayName(ctx, uid)
	if err != nil {
		logger.Warn("EnsureProfile: auth lookup failed for %s, keeping stored profile: %v", uid, err)
		return uc.userRepo.GetByID(ctx, uid)
	}
	if displayName == "" {
		displayName = unknownUserName
	}

	user := &entity.User{
		ID:          uid,
		DisplayName: displayName,
		PhotoURL:    photoURL,
	}
	if err := uc.userRepo.Upsert(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (uc *UserUseCase) GetProfile(ctx context.Context, uid string) (*entity.User, error) {
	return uc.userRepo.GetByID(ctx, uid)
}

func (uc *UserUseCase) SearchUsers(ctx context.Context, query string, limit int) ([]*entity.User, error) {
	if query == "" {
		return nil, errors.BadRequest("Search query is required", nil)
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return uc.userRepo.Search(ctx, query, limit)
}
