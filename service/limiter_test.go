package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"isp-admission-service/domain"
)

type scopedResult struct {
	result *domain.RateLimitResult
	err    error
}

type mockRepo struct {
	calls   []domain.ScopeType
	byScope map[domain.ScopeType]scopedResult
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		byScope: map[domain.ScopeType]scopedResult{},
	}
}

func (m *mockRepo) allow(scope domain.ScopeType, remaining int) *mockRepo {
	m.byScope[scope] = scopedResult{result: &domain.RateLimitResult{
		Allow:     true,
		Limit:     10,
		Remaining: remaining,
		Window:    time.Minute,
	}}
	return m
}

func (m *mockRepo) deny(scope domain.ScopeType, retryAfter time.Duration) *mockRepo {
	m.byScope[scope] = scopedResult{result: &domain.RateLimitResult{
		Allow:      false,
		Limit:      10,
		Remaining:  0,
		Window:     time.Minute,
		RetryAfter: retryAfter,
	}}
	return m
}

func (m *mockRepo) fail(scope domain.ScopeType, err error) *mockRepo {
	m.byScope[scope] = scopedResult{err: err}
	return m
}

func (m *mockRepo) Allow(
	_ context.Context,
	scope domain.ScopeType,
	_ string,
	_ domain.LimitParams,
	_ int,
) (*domain.RateLimitResult, error) {
	m.calls = append(m.calls, scope)
	scoped, ok := m.byScope[scope]
	if !ok {
		return &domain.RateLimitResult{Allow: true, Limit: 10, Remaining: 9, Window: time.Minute}, nil
	}
	return scoped.result, scoped.err
}

func checkRequest() domain.CheckRequest {
	return domain.CheckRequest{
		CredentialId:  "cred-1",
		ClientAddress: "10.0.0.1",
		Endpoint:      "/pipeline/execute",
	}
}

func TestLimiter_MostRestrictiveRemaining(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	repo := newMockRepo().
		allow(domain.ScopeGlobal, 100).
		allow(domain.ScopeCredential, 3).
		allow(domain.ScopeClientAddress, 42).
		allow(domain.ScopeEndpointCategory, 7)
	limiter := NewLimiter(repo, NewResolver(testAdmissionConfig(), testLogger(t)), false, testLogger(t))

	decision, err := limiter.Check(context.Background(), checkRequest())
	require.NoError(err)
	require.True(decision.Allow)
	require.EqualValues(3, decision.Remaining)
	require.Len(repo.calls, 4)
}

func TestLimiter_ShortCircuitOnDenial(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	repo := newMockRepo().
		allow(domain.ScopeGlobal, 100).
		deny(domain.ScopeCredential, 30*time.Second)
	limiter := NewLimiter(repo, NewResolver(testAdmissionConfig(), testLogger(t)), false, testLogger(t))

	decision, err := limiter.Check(context.Background(), checkRequest())
	require.NoError(err)
	require.False(decision.Allow)
	require.EqualValues(domain.ScopeCredential, decision.DeniedScope)
	require.EqualValues(30*time.Second, decision.RetryAfter)
	// client_address and endpoint_category must not have been evaluated
	require.EqualValues([]domain.ScopeType{domain.ScopeGlobal, domain.ScopeCredential}, repo.calls)
}

func TestLimiter_ExemptEndpointIsUnlimited(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	repo := newMockRepo()
	limiter := NewLimiter(repo, NewResolver(testAdmissionConfig(), testLogger(t)), false, testLogger(t))

	req := checkRequest()
	req.Endpoint = "/internal/health/live"
	decision, err := limiter.Check(context.Background(), req)
	require.NoError(err)
	require.True(decision.Allow)
	require.EqualValues(domain.UnlimitedRemaining, decision.Remaining)
	require.Empty(repo.calls)
}

func TestLimiter_FailOpen(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	repo := newMockRepo().fail(domain.ScopeGlobal, errors.WithMessage(domain.ErrStoreUnavailable, "dial tcp: timeout"))
	limiter := NewLimiter(repo, NewResolver(testAdmissionConfig(), testLogger(t)), false, testLogger(t))

	decision, err := limiter.Check(context.Background(), checkRequest())
	require.NoError(err)
	require.True(decision.Allow)
	require.True(decision.Degraded)
	require.EqualValues(domain.UnlimitedRemaining, decision.Remaining)
	require.EqualValues(1, limiter.DegradedAdmissions())
	// no point in asking the store again within the same request
	require.EqualValues([]domain.ScopeType{domain.ScopeGlobal}, repo.calls)
}

func TestLimiter_FailClosed(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	repo := newMockRepo().fail(domain.ScopeGlobal, errors.WithMessage(domain.ErrStoreUnavailable, "dial tcp: timeout"))
	limiter := NewLimiter(repo, NewResolver(testAdmissionConfig(), testLogger(t)), true, testLogger(t))

	decision, err := limiter.Check(context.Background(), checkRequest())
	require.NoError(err)
	require.False(decision.Allow)
	require.True(decision.Degraded)
	require.EqualValues(domain.ScopeGlobal, decision.DeniedScope)
	require.Positive(decision.RetryAfter)
	require.EqualValues(1, limiter.DegradedAdmissions())
}

func TestLimiter_UnexpectedErrorPropagates(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	repo := newMockRepo().fail(domain.ScopeGlobal, errors.New("unknown algorithm"))
	limiter := NewLimiter(repo, NewResolver(testAdmissionConfig(), testLogger(t)), false, testLogger(t))

	_, err := limiter.Check(context.Background(), checkRequest())
	require.Error(err)
}

func TestLimiter_InvalidRequest(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	repo := newMockRepo()
	limiter := NewLimiter(repo, NewResolver(testAdmissionConfig(), testLogger(t)), false, testLogger(t))

	req := checkRequest()
	req.ClientAddress = "not-an-address"
	_, err := limiter.Check(context.Background(), req)
	require.True(errors.Is(err, domain.ErrInvalidRequest))
	require.Empty(repo.calls)
}
