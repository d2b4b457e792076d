package tokenstore

import (
	"context"
	"testing"
	"time"
)

func TestRevokeAndLookup(t *testing.T) {
	ctx := context.Background()

	if IsRevoked(ctx, "never-seen") {
		t.Fatalf("unknown jti should not be revoked")
	}

	RevokeToken(ctx, "jti-1", time.Hour)
	if !IsRevoked(ctx, "jti-1") {
		t.Fatalf("expected jti-1 to be revoked")
	}

	// empty jti is ignored on both paths
	RevokeToken(ctx, "", time.Hour)
	if IsRevoked(ctx, "") {
		t.Fatalf("empty jti must never read as revoked")
	}
}
