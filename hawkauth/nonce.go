package hawkauth

import (
	"sync"
	"time"

	"github.com/willf/bloom"
	"go.mozilla.org/hawk"
)

// NonceCache is C15: a rotating pair of bloom filters used to reject a
// replayed HAWK nonce without keeping every nonce ever seen. A nonce is
// only unique alongside its timestamp and credential id, so all three are
// folded into the membership key together, same as the teacher's
// HawkHandler.hawkNonceNotFound.
type NonceCache struct {
	bloomPrev *bloom.BloomFilter
	bloomNow  *bloom.BloomFilter

	halflife   time.Duration
	lastRotate time.Time
	mu         sync.Mutex
}

// NewNonceCache sizes each filter at 3,000,000 bits (1000 * 60 * 50) with
// 5 hash functions, and rotates the pair every 30 seconds.
func NewNonceCache() *NonceCache {
	m := uint(1000 * 60 * 50)
	now := time.Now()
	return &NonceCache{
		bloomPrev:  bloom.New(m, 5),
		bloomNow:   bloom.New(m, 5),
		halflife:   30 * time.Second,
		lastRotate: now,
	}
}

// NotFound implements the hawk.NonceNotFoundFunc signature: it returns
// true the first time (nonce, t, creds.ID) is seen and false on replay.
func (c *NonceCache) NotFound(nonce string, t time.Time, creds *hawk.Credentials) bool {
	var key string
	if creds != nil {
		key = nonce + t.String() + creds.ID
	} else {
		key = nonce + t.String()
	}

	c.mu.Lock()
	now := time.Now()
	if now.Sub(c.lastRotate) > c.halflife {
		c.bloomNow, c.bloomPrev = c.bloomPrev, c.bloomNow
		c.bloomNow.ClearAll()
		c.lastRotate = now
	}
	c.mu.Unlock()

	if c.bloomNow.TestString(key) || c.bloomPrev.TestString(key) {
		return false
	}
	c.bloomNow.AddString(key)
	return true
}
