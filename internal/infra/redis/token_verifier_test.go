package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"quiz-results-service/internal/domain"
)

func TestTokenVerifier(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	mr.Set("auth:token:good-token", "42")
	mr.Set("auth:token:garbage", "not-a-number")

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	verifier := NewTokenVerifier(client)
	ctx := context.Background()

	userID, err := verifier.Verify(ctx, "good-token")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}

	if _, err := verifier.Verify(ctx, ""); domain.KindOf(err) != domain.KindAuthentication {
		t.Fatalf("expected authentication error for empty credential, got %v", err)
	}
	if _, err := verifier.Verify(ctx, "unknown"); domain.KindOf(err) != domain.KindAuthentication {
		t.Fatalf("expected authentication error for unknown credential, got %v", err)
	}
	if _, err := verifier.Verify(ctx, "garbage"); domain.KindOf(err) != domain.KindAuthentication {
		t.Fatalf("expected authentication error for malformed record, got %v", err)
	}
}
