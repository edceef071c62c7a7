package matcher

import "sync"

type atLeastOneMatcher struct {
	cache map[string]bool
	lock  sync.RWMutex
	rm    runtimeMatcher
}

func (mm *atLeastOneMatcher) Match(endpoint string) bool {
	if len(mm.rm.patterns) == 0 {
		return false
	}

	mm.lock.RLock()
	matched, ok := mm.cache[endpoint]
	mm.lock.RUnlock()
	if ok {
		return matched
	}

	mm.lock.Lock()
	defer mm.lock.Unlock()
	if matched, ok = mm.cache[endpoint]; ok {
		return matched
	}
	matched = len(mm.rm.Match(endpoint)) > 0
	// only positive matches are cached, the endpoint path is
	// caller-controlled and misses would grow the cache without bound
	if matched {
		mm.cache[endpoint] = matched
	}
	return matched
}
