package matcher

import (
	"strings"
)

type runtimeMatcher struct {
	patterns []string
}

func (mm runtimeMatcher) Match(endpoint string) []string {
	matched := make([]string, 0)
	for _, pattern := range mm.patterns {
		patternLen := len(pattern)
		if patternLen > 0 && pattern[patternLen-1] == '*' {
			if strings.HasPrefix(endpoint, pattern[:patternLen-1]) {
				matched = append(matched, pattern)
			}
		} else if strings.EqualFold(endpoint, pattern) {
			matched = append(matched, pattern)
		}
	}
	return matched
}
