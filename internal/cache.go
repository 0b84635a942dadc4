package internal

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// The memory cache backs log and publish deduplication: the same bad
// payload or the same outgoing message within the expiration window is
// handled once. Entries expire, so a persistent problem resurfaces in
// the log instead of being silenced forever.

var memoryDataExpiration = 10 * time.Second
var memCache = cache.New(memoryDataExpiration, 20*time.Second)

// InitMemcache resets the cache to its default expiration. Tests use it
// to start from a clean slate.
func InitMemcache() {
	memCache = cache.New(memoryDataExpiration, 20*time.Second)
}

func SetMemcached(key string, value interface{}) {
	memCache.SetDefault(key, value)
}

func GetMemcached(key string) (value interface{}, found bool) {
	value, found = memCache.Get(key)
	return
}
