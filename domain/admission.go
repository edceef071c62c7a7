package domain

import (
	"time"
)

type ScopeType string

const (
	ScopeGlobal           ScopeType = "global"
	ScopeCredential       ScopeType = "credential"
	ScopeClientAddress    ScopeType = "client_address"
	ScopeEndpointCategory ScopeType = "endpoint_category"
)

type Algorithm string

const (
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmFixedWindow   Algorithm = "fixed_window"
)

type LimitParams struct {
	Algorithm Algorithm
	Limit     int
	Window    time.Duration
	Burst     int
}

// UnlimitedRemaining marks a result that no configured limit constrains.
const UnlimitedRemaining = -1

type CheckRequest struct {
	CredentialId  string
	Tier          string
	ClientAddress string
	Endpoint      string
	Cost          int
}

type RateLimitResult struct {
	Allow      bool
	Limit      int
	Remaining  int
	Window     time.Duration
	RetryAfter time.Duration
}

type AggregatedDecision struct {
	Allow       bool
	Limit       int
	Remaining   int
	Window      time.Duration
	RetryAfter  time.Duration
	DeniedScope ScopeType
	Degraded    bool
}
