package catalog

import (
	"fmt"
	"time"
)

type cacheItem struct {
	items   []Product
	expires time.Time
}

func (s *Service) getListCache(f ProductFilter) ([]Product, bool) {
	key := cacheKey(f)
	s.cacheMu.RLock()
	item, ok := s.listCache[key]
	s.cacheMu.RUnlock()
	if !ok || s.now().After(item.expires) {
		return nil, false
	}
	return item.items, true
}

// cacheGeneration is read before loading a listing and passed back to
// setListCache.
func (s *Service) cacheGeneration() uint64 {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cacheGen
}

// setListCache stores items unless the cache was invalidated after gen was
// read, in which case the listing may predate a stock change.
func (s *Service) setListCache(f ProductFilter, items []Product, gen uint64) {
	if s.cacheTTL <= 0 {
		return
	}
	key := cacheKey(f)
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.cacheGen {
		return
	}
	s.listCache[key] = cacheItem{items: items, expires: s.now().Add(s.cacheTTL)}
}

// InvalidateProducts drops every cached product listing. The order workflow
// calls it after each stock mutation.
func (s *Service) InvalidateProducts() {
	s.cacheMu.Lock()
	s.cacheGen++
	clear(s.listCache)
	s.cacheMu.Unlock()
}

func cacheKey(f ProductFilter) string {
	return fmt.Sprintf("%s|%s|%t|%d|%d", f.CategoryID, f.SubCategoryID, f.TopOnly, f.Skip, f.Limit)
}
