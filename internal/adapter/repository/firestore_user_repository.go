package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	doc, err := r.client.Collection("users").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", err)
		}
		return nil, wrapErr("Failed to get user", err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	if user.ID == "" {
		user.ID = doc.Ref.ID
	}

	return &user, nil
}

func (r *firestoreUserRepository) Upsert(ctx context.Context, user *entity.User) error {
	if user.ID == "" {
		return errors.BadRequest("User id is required", nil)
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.client.Collection("users").Doc(user.ID).Set(ctx, user, firestore.MergeAll)
	if err != nil {
		return wrapErr("Failed to upsert user", err)
	}

	return nil
}

// prefixRange returns the half-open [lower, upper) bounds selecting every
// string that starts with prefix. U+F8FF sorts after any code point in
// stored field values, so prefix+"\uf8ff" caps the range.
func prefixRange(prefix string) (lower, upper string) {
	return prefix, prefix + "\uf8ff"
}

func (r *firestoreUserRepository) Search(ctx context.Context, query string, limit int) ([]*entity.User, error) {
	// Prefix match on displayName; good enough for the directory lookup.
	lower, upper := prefixRange(query)
	iter := r.client.Collection("users").
		Where("displayName", ">=", lower).
		Where("displayName", "<", upper).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var users []*entity.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapErr("Failed to search users", err)
		}

		var user entity.User
		if err := doc.DataTo(&user); err != nil {
			logger.Warn("Search: skipping unparsable user %s: %v", doc.Ref.ID, err)
			continue
		}
		if user.ID == "" {
			user.ID = doc.Ref.ID
		}
		users = append(users, &user)
	}

	return users, nil
}
