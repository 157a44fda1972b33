package trustgraph

import "trust-service/internal/models"

// LookupCache memoizes directory reads for the duration of one score
// computation. Absent tokens are remembered too. A cache must not be
// shared between requests.
type LookupCache struct {
	entries map[string]*models.User
}

// NewLookupCache returns a cache pre-populated with the given users.
func NewLookupCache(seed ...*models.User) *LookupCache {
	c := &LookupCache{entries: make(map[string]*models.User, len(seed))}
	for _, u := range seed {
		if u != nil {
			c.entries[u.PhoneToken] = u
		}
	}
	return c
}

// get reports the cached user (nil when known absent) and whether the
// token has been resolved before.
func (c *LookupCache) get(token string) (*models.User, bool) {
	u, ok := c.entries[token]
	return u, ok
}

func (c *LookupCache) put(token string, u *models.User) {
	c.entries[token] = u
}

// Len is the number of distinct tokens resolved so far.
func (c *LookupCache) Len() int {
	return len(c.entries)
}
