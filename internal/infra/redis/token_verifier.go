package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"quiz-results-service/internal/domain"
)

// TokenVerifier resolves bearer credentials against the identity service's
// session keys in Redis: auth:token:{credential} -> user ID.
type TokenVerifier struct {
	client *redis.Client
}

func NewTokenVerifier(client *redis.Client) *TokenVerifier {
	return &TokenVerifier{client: client}
}

func (v *TokenVerifier) Verify(ctx context.Context, credential string) (int64, error) {
	if credential == "" {
		return 0, domain.AuthenticationError("missing credential")
	}
	raw, err := v.client.Get(ctx, v.key(credential)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.AuthenticationError("unknown or expired credential")
	}
	if err != nil {
		return 0, fmt.Errorf("verify credential: %w", err)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.AuthenticationError("malformed session record")
	}
	return userID, nil
}

func (v *TokenVerifier) key(credential string) string {
	return "auth:token:" + credential
}
