package view

import (
	"sync"

	"github.com/PuerkitoBio/purell"
)

const urlNormalization = purell.FlagsUsuallySafeGreedy |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery

// visitedSet dedups page fetches within one crawl, so cyclic tab links
// terminate.
type visitedSet struct {
	mutex sync.Mutex
	seen  map[string]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{seen: map[string]struct{}{}}
}

func visitKey(href string) string {
	normalized, err := purell.NormalizeURLString(href, urlNormalization)
	if err != nil {
		return href
	}
	return normalized
}

// add reports whether href had not been visited yet.
func (v *visitedSet) add(href string) bool {
	key := visitKey(href)
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}
