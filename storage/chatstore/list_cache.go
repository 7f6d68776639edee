package chatstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// listCache memoizes conversation listings for a short time. Hits do not
// extend an entry's lifetime.
type listCache struct {
	ttl   time.Duration
	pages *ttlcache.Cache[string, ConversationPage]
}

func newListCache(ttl time.Duration) *listCache {
	return &listCache{
		ttl: ttl,
		pages: ttlcache.New[string, ConversationPage](
			ttlcache.WithTTL[string, ConversationPage](ttl),
			ttlcache.WithDisableTouchOnHit[string, ConversationPage](),
		),
	}
}

func listKey(ids []string, offset, limit int) string {
	return fmt.Sprintf("%s|%d|%d", strings.Join(ids, ","), offset, limit)
}

func (c *listCache) get(key string) (*ConversationPage, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	item := c.pages.Get(key)
	if item == nil {
		return nil, false
	}
	return copyPage(item.Value()), true
}

func (c *listCache) put(key string, page *ConversationPage) {
	if c.ttl <= 0 {
		return
	}
	c.pages.Set(key, *copyPage(*page), ttlcache.DefaultTTL)
}

func (c *listCache) invalidate() {
	c.pages.DeleteAll()
}

func copyPage(p ConversationPage) *ConversationPage {
	return &ConversationPage{
		Conversations: append([]Conversation(nil), p.Conversations...),
		Total:         p.Total,
	}
}
