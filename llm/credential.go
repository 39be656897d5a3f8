package llm

import (
	"context"
	"sync"
	"time"

	"github.com/pmeller/verba/errors"
)

// credentialSafetyMargin is subtracted from the reported expiry so a token is
// never used right at its deadline.
const credentialSafetyMargin = 30 * time.Second

// fetchTokenFunc obtains a fresh bearer token and its absolute expiry.
type fetchTokenFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenCache caches one bearer token with its expiry and refreshes it lazily.
// The expiry check and the refresh form a single critical section, so a
// caller either sees a consistent valid (token, expiry) pair or performs the
// refresh itself; two callers never interleave partial writes.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time // test hook
}

func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Token returns the cached token, refreshing through fetch when the cache is
// empty or within the safety margin of expiry.
func (c *TokenCache) Token(ctx context.Context, fetch fetchTokenFunc) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt.Add(-credentialSafetyMargin)) {
		return c.token, nil
	}
	token, expiresAt, err := fetch(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch access token")
	}
	c.token = token
	c.expiresAt = expiresAt
	return token, nil
}
