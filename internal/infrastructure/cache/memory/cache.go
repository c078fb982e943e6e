package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// allSourcesTag marks an unfiltered query in the key encoding.
const allSourcesTag = "*;"

// Signature captures the pipeline settings that change what an answer looks like.
// Any change yields different keys, so stale answers are never looked up again.
type Signature struct {
	RetrievalTopK int
	RerankEnabled bool
	RerankTopN    int
	IndexVersion  string
}

func (s Signature) String() string {
	return fmt.Sprintf("%d:%t:%d:%s", s.RetrievalTopK, s.RerankEnabled, s.RerankTopN, s.IndexVersion)
}

type Options struct {
	Enabled   bool
	TTL       time.Duration
	MaxItems  int
	Signature Signature
	Now       func() time.Time
}

type entry struct {
	answer    *domain.Answer
	createdAt time.Time
	expiresAt time.Time
}

// ResponseCache is a capacity-bounded LRU of answers with lazy TTL expiry.
// All bookkeeping happens under one mutex.
type ResponseCache struct {
	enabled   bool
	ttl       time.Duration
	maxItems  int
	signature string
	now       func() time.Time

	mu      sync.Mutex
	entries *simplelru.LRU[string, entry]
	hits    uint64
	misses  uint64
}

func New(opts Options) (*ResponseCache, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &ResponseCache{
		enabled:   opts.Enabled,
		ttl:       opts.TTL,
		maxItems:  opts.MaxItems,
		signature: opts.Signature.String(),
		now:       now,
	}
	if !c.enabled {
		return c, nil
	}
	if c.ttl <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new response cache", fmt.Errorf("ttl must be positive, got %s", c.ttl))
	}
	entries, err := simplelru.NewLRU[string, entry](c.maxItems, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new response cache", err)
	}
	c.entries = entries
	return c, nil
}

func (c *ResponseCache) Get(question string, filter domain.SearchFilter) (*domain.Answer, bool) {
	if !c.enabled {
		return nil, false
	}
	key := Key(question, filter, c.signature)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.entries.Remove(key)
		c.misses++
		return nil, false
	}

	// Get refreshes recency; Peek above does not.
	c.entries.Get(key)
	c.hits++
	return e.answer.Clone(), true
}

func (c *ResponseCache) Set(question string, filter domain.SearchFilter, answer *domain.Answer) {
	if !c.enabled || answer == nil {
		return
	}
	key := Key(question, filter, c.signature)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.entries.Contains(key) && c.entries.Len() >= c.maxItems {
		if evicted, _, ok := c.entries.RemoveOldest(); ok {
			slog.Debug("response_cache_evicted", "key", evicted)
		}
	}
	c.entries.Add(key, entry{
		answer:    answer.Clone(),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	})
}

func (c *ResponseCache) Stats() domain.CacheStats {
	stats := domain.CacheStats{Enabled: c.enabled}
	if !c.enabled {
		return stats
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stats.Entries = c.entries.Len()
	stats.Hits = c.hits
	stats.Misses = c.misses
	return stats
}

// Close drops every entry. Counters are kept.
func (c *ResponseCache) Close() {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Key derives the cache fingerprint from the trimmed, case-folded question, the
// sorted de-duplicated document ids and the pipeline signature. Every component
// is length-prefixed, and "no filter" is a tag that no id list can produce.
func Key(question string, filter domain.SearchFilter, signature string) string {
	var b strings.Builder
	writeField(&b, normalizeQuestion(question))
	writeFilter(&b, filter)
	writeField(&b, signature)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func normalizeQuestion(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

func writeFilter(b *strings.Builder, filter domain.SearchFilter) {
	ids := filter.Normalized().DocumentIDs
	if len(ids) == 0 {
		b.WriteString(allSourcesTag)
		return
	}
	fmt.Fprintf(b, "ids%d;", len(ids))
	for _, id := range ids {
		writeField(b, id)
	}
}

func writeField(b *strings.Builder, value string) {
	fmt.Fprintf(b, "%d:%s", len(value), value)
}
