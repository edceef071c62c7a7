package matcher

type Matcher interface {
	Match(endpoint string) []string
}

type AtLeastOneMatcher interface {
	Match(endpoint string) bool
}

func NewRuntimeMatcher(patterns []string) Matcher {
	return &runtimeMatcher{
		patterns: patterns,
	}
}

func NewAtLeastOneMatcher(patterns []string) AtLeastOneMatcher {
	return &atLeastOneMatcher{
		cache: make(map[string]bool),
		rm:    runtimeMatcher{patterns: patterns},
	}
}
