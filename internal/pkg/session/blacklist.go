// internal/pkg/session/blacklist.go
package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Blacklist tracks revoked token ids. The identity service writes the same keys on logout.
type Blacklist struct {
	client redis.UniversalClient
}

func NewBlacklist(client redis.UniversalClient) *Blacklist {
	return &Blacklist{client: client}
}

// IsTokenBlacklisted checks if a token is blacklisted
func (b *Blacklist) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
