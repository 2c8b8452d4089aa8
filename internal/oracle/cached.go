package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cached remembers verdicts per text pair so a forced re-run does not pay for
// pairs it has already scored. Failures are never cached.
type Cached struct {
	next  Oracle
	cache *gocache.Cache
}

func NewCached(next Oracle, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Score(ctx context.Context, evidenceText, promiseText string) (Verdict, error) {
	key := pairKey(evidenceText, promiseText)
	if v, found := c.cache.Get(key); found {
		return v.(Verdict), nil
	}
	v, err := c.next.Score(ctx, evidenceText, promiseText)
	if err != nil {
		return Verdict{}, err
	}
	c.cache.SetDefault(key, v)
	return v, nil
}

func pairKey(evidenceText, promiseText string) string {
	h := sha256.New()
	h.Write([]byte(evidenceText))
	h.Write([]byte{0})
	h.Write([]byte(promiseText))
	return hex.EncodeToString(h.Sum(nil))
}
