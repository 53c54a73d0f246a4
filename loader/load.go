package loader

import (
	"encoding/base64"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/evanphx/penguin/elf"
	"github.com/evanphx/penguin/log"
	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
)

// LoaderCache remembers parsed executables by the hash of their contents.
// Parsed files hold no reference to the bytes they came from, so sharing
// them between processes is safe.
type LoaderCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewLoaderCache(size int) *LoaderCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}

	return &LoaderCache{cache: cache}
}

func (l *LoaderCache) Lookup(key string) (*elf.File, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	val, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}

	return val.(*elf.File), true
}

func (l *LoaderCache) Set(key string, f *elf.File) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(key, f)
}

func (l *LoaderCache) Len() int {
	return l.cache.Len()
}

type Loader struct {
	L     hclog.Logger
	cache *LoaderCache
}

// NewLoader returns a loader. A nil cache parses every image afresh.
func NewLoader(cache *LoaderCache) *Loader {
	return &Loader{
		L:     log.Named("loader"),
		cache: cache,
	}
}

func cacheKey(buf []byte) string {
	sum := blake2b.Sum256(buf)
	return base64.URLEncoding.EncodeToString(sum[:])
}

// Load validates buf as an executable and returns its parsed view. Every
// loadable segment is checked against buf as well, so callers can map the
// segments without further validation.
func (l *Loader) Load(buf []byte) (*elf.File, error) {
	var key string

	if l.cache != nil {
		key = cacheKey(buf)

		if f, ok := l.cache.Lookup(key); ok {
			l.L.Trace("cached executable", "key", key)
			return f, nil
		}
	}

	f, err := elf.Parse(buf)
	if err != nil {
		return nil, err
	}

	for _, ph := range f.LoadSegments() {
		if err := ph.Validate(); err != nil {
			return nil, err
		}

		if _, err := f.SegmentData(buf, ph); err != nil {
			return nil, err
		}
	}

	if l.L.IsTrace() {
		l.L.Trace("parsed executable", "entry", f.Entry(), "image", f.String())
	}

	if l.cache != nil {
		l.L.Debug("cached executable", "key", key)
		l.cache.Set(key, f)
	}

	return f, nil
}
