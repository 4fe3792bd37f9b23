package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

// AuthClient wraps the Firebase auth collaborator. The core trusts the
// verified uid verbatim.
type AuthClient struct {
	client *auth.Client
}

func NewAuthClient(client *auth.Client) *AuthClient {
	return &AuthClient{
		client: client,
	}
}

func (f *AuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}

	return result.UID, nil
}

func (f *AuthClient) GetUserDisplayName(ctx context.Context, uid string) (string, string, error) {
	record, err := f.client.GetUser(ctx, uid)
	if err != nil {
		return "", "", err
	}

	return record.DisplayName, record.PhotoURL, nil
}
