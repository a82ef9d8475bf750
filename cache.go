package main

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// cacheKey identifies one extraction of one source version
type cacheKey struct {
	Hash     string
	Language Language
	Mode     Mode
	Target   string
}

// resultCache memoizes extraction results. Results are treated as
// read-only once cached.
type resultCache struct {
	entries *lru.Cache[cacheKey, *ExtractionResult]
}

func newResultCache(size int) (*resultCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	entries, err := lru.New[cacheKey, *ExtractionResult](size)
	if err != nil {
		return nil, err
	}
	return &resultCache{entries: entries}, nil
}

// CachedExtractor runs extractions through an LRU cache
type CachedExtractor struct {
	extractor *Extractor
	cache     *resultCache
}

// NewCachedExtractor wraps an extractor with a cache of the given size
func NewCachedExtractor(extractor *Extractor, size int) (*CachedExtractor, error) {
	cache, err := newResultCache(size)
	if err != nil {
		return nil, err
	}
	return &CachedExtractor{extractor: extractor, cache: cache}, nil
}

// Extract returns the cached result for the snapshot and target, running
// the extraction on a miss. Errors are not cached.
func (c *CachedExtractor) Extract(snap *Snapshot, target string, mode Mode) (*ExtractionResult, error) {
	if mode == "" {
		mode = c.extractor.config.Mode
	}
	if mode == "" {
		mode = ModeRefCount
	}

	key := cacheKey{Hash: snap.Hash, Language: snap.Language, Mode: mode, Target: target}
	if result, ok := c.cache.entries.Get(key); ok {
		return result, nil
	}

	result, err := c.extractor.Extract(ExtractionRequest{
		Filename: snap.Path,
		Source:   snap.Text,
		Target:   target,
		Language: snap.Language,
		Mode:     mode,
	})
	if err != nil {
		return nil, err
	}
	c.cache.entries.Add(key, result)
	return result, nil
}

// Len reports how many results are cached
func (c *CachedExtractor) Len() int {
	return c.cache.entries.Len()
}
