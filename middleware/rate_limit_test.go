package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"isp-admission-service/domain"
	"isp-admission-service/httperrors"
	"isp-admission-service/middleware"
	"isp-admission-service/request"
)

type stubLimiter struct {
	decision *domain.AggregatedDecision
	err      error
	received domain.CheckRequest
}

func (s *stubLimiter) Check(_ context.Context, req domain.CheckRequest) (*domain.AggregatedDecision, error) {
	s.received = req
	return s.decision, s.err
}

type passedHandler struct {
	called bool
}

func (h *passedHandler) Handle(*request.Context) error {
	h.called = true
	return nil
}

func callRateLimit(t *testing.T, limiter *stubLimiter) (*httptest.ResponseRecorder, *passedHandler, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/pipeline/execute", nil)
	recorder := httptest.NewRecorder()
	ctx := request.NewContext(req, recorder, "/pipeline/execute", "10.0.0.1")
	ctx.SetCredential("cred-1", "premium")

	next := &passedHandler{}
	err := middleware.RateLimit(limiter)(next).Handle(ctx)
	return recorder, next, err
}

func TestRateLimit_Allowed(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	limiter := &stubLimiter{decision: &domain.AggregatedDecision{
		Allow:     true,
		Limit:     10,
		Remaining: 3,
		Window:    time.Minute,
	}}

	recorder, next, err := callRateLimit(t, limiter)
	require.NoError(err)
	require.True(next.called)
	require.EqualValues("cred-1", limiter.received.CredentialId)
	require.EqualValues("premium", limiter.received.Tier)
	require.EqualValues("10.0.0.1", limiter.received.ClientAddress)
	require.EqualValues("/pipeline/execute", limiter.received.Endpoint)

	header := recorder.Header()
	require.EqualValues("10", header.Get("X-RateLimit-Limit"))
	require.EqualValues("3", header.Get("X-RateLimit-Remaining"))
	require.EqualValues("60", header.Get("X-RateLimit-Reset"))
	require.Empty(header.Get("Retry-After"))
}

func TestRateLimit_Denied(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	limiter := &stubLimiter{decision: &domain.AggregatedDecision{
		Allow:       false,
		Limit:       10,
		Remaining:   0,
		Window:      time.Minute,
		RetryAfter:  2500 * time.Millisecond,
		DeniedScope: domain.ScopeCredential,
	}}

	recorder, next, err := callRateLimit(t, limiter)
	require.False(next.called)

	httpError := httperrors.HttpError{}
	require.True(errors.As(err, &httpError))
	require.EqualValues(http.StatusTooManyRequests, httpError.StatusCode())

	header := recorder.Header()
	require.EqualValues("0", header.Get("X-RateLimit-Remaining"))
	// retry interval is rounded up to whole seconds
	require.EqualValues("3", header.Get("Retry-After"))
}

func TestRateLimit_UnlimitedSkipsHeaders(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	limiter := &stubLimiter{decision: &domain.AggregatedDecision{
		Allow:     true,
		Remaining: domain.UnlimitedRemaining,
	}}

	recorder, next, err := callRateLimit(t, limiter)
	require.NoError(err)
	require.True(next.called)
	require.Empty(recorder.Header().Get("X-RateLimit-Limit"))
	require.Empty(recorder.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_DegradedStillServes(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	limiter := &stubLimiter{decision: &domain.AggregatedDecision{
		Allow:     true,
		Remaining: domain.UnlimitedRemaining,
		Degraded:  true,
	}}

	_, next, err := callRateLimit(t, limiter)
	require.NoError(err)
	require.True(next.called)
}

func TestRateLimit_InvalidRequest(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	limiter := &stubLimiter{err: errors.WithMessage(domain.ErrInvalidRequest, "invalid client address")}

	_, next, err := callRateLimit(t, limiter)
	require.False(next.called)

	httpError := httperrors.HttpError{}
	require.True(errors.As(err, &httpError))
	require.EqualValues(http.StatusBadRequest, httpError.StatusCode())
}

func TestRateLimit_UnexpectedError(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	limiter := &stubLimiter{err: errors.New("boom")}

	_, next, err := callRateLimit(t, limiter)
	require.False(next.called)
	require.Error(err)

	httpError := httperrors.HttpError{}
	require.False(errors.As(err, &httpError))
}
