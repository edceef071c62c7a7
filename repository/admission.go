package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"isp-admission-service/domain"
)

//go:embed sliding_window.lua
var slidingWindowScript string

//go:embed fixed_window.lua
var fixedWindowScript string

type Admission struct {
	cli           redis.UniversalClient
	limiter       *redis_rate.Limiter
	slidingWindow *redis.Script
	fixedWindow   *redis.Script
	timeout       time.Duration
}

func NewAdmission(cli redis.UniversalClient, timeout time.Duration) Admission {
	return Admission{
		cli:           cli,
		limiter:       redis_rate.NewLimiter(cli),
		slidingWindow: redis.NewScript(slidingWindowScript),
		fixedWindow:   redis.NewScript(fixedWindowScript),
		timeout:       timeout,
	}
}

func (r Admission) Allow(
	ctx context.Context,
	scope domain.ScopeType,
	identifier string,
	params domain.LimitParams,
	cost int,
) (*domain.RateLimitResult, error) {
	// a client disconnect must not refund budget that was already contended for,
	// so the store call is detached from the caller's cancellation
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	switch params.Algorithm {
	case domain.AlgorithmTokenBucket:
		return r.allowTokenBucket(ctx, scope, identifier, params, cost)
	case domain.AlgorithmSlidingWindow:
		return r.allowSlidingWindow(ctx, scope, identifier, params, cost)
	case domain.AlgorithmFixedWindow:
		return r.allowFixedWindow(ctx, scope, identifier, params, cost)
	default:
		return nil, errors.Errorf("unknown algorithm '%s'", params.Algorithm)
	}
}

func (r Admission) allowTokenBucket(
	ctx context.Context,
	scope domain.ScopeType,
	identifier string,
	params domain.LimitParams,
	cost int,
) (*domain.RateLimitResult, error) {
	limit := redis_rate.Limit{
		Rate:   params.Limit,
		Period: params.Window,
		Burst:  params.Limit + params.Burst,
	}
	result, err := r.limiter.AllowN(ctx, r.key(scope, identifier, params.Algorithm), limit, cost)
	if err != nil {
		return nil, storeUnavailable(err, "redis_rate/AllowN")
	}

	retryAfter := result.RetryAfter
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &domain.RateLimitResult{
		Allow:      result.Allowed > 0,
		Limit:      params.Limit,
		Remaining:  result.Remaining,
		Window:     params.Window,
		RetryAfter: retryAfter,
	}, nil
}

func (r Admission) allowSlidingWindow(
	ctx context.Context,
	scope domain.ScopeType,
	identifier string,
	params domain.LimitParams,
	cost int,
) (*domain.RateLimitResult, error) {
	key := r.key(scope, identifier, params.Algorithm)
	cmd := r.slidingWindow.Run(ctx, r.cli,
		[]string{key},
		params.Limit+params.Burst,
		params.Window.Milliseconds(),
		time.Now().UnixMilli(),
		cost,
	)
	return r.scriptResult(cmd, params, "sliding window script")
}

func (r Admission) allowFixedWindow(
	ctx context.Context,
	scope domain.ScopeType,
	identifier string,
	params domain.LimitParams,
	cost int,
) (*domain.RateLimitResult, error) {
	windowMs := params.Window.Milliseconds()
	bucket := time.Now().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%d", r.key(scope, identifier, params.Algorithm), bucket)
	cmd := r.fixedWindow.Run(ctx, r.cli,
		[]string{key},
		params.Limit+params.Burst,
		windowMs,
		cost,
	)
	return r.scriptResult(cmd, params, "fixed window script")
}

func (r Admission) scriptResult(cmd *redis.Cmd, params domain.LimitParams, op string) (*domain.RateLimitResult, error) {
	values, err := cmd.Int64Slice()
	if err != nil {
		return nil, storeUnavailable(err, op)
	}
	if len(values) != 3 { //nolint:mnd
		return nil, errors.Errorf("%s: unexpected response %v", op, values)
	}
	return &domain.RateLimitResult{
		Allow:      values[0] == 1,
		Limit:      params.Limit,
		Remaining:  int(values[1]),
		Window:     params.Window,
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}

func (r Admission) key(scope domain.ScopeType, identifier string, algorithm domain.Algorithm) string {
	return fmt.Sprintf("admission:%s:%s:%s", algorithm, scope, identifier)
}

func storeUnavailable(err error, op string) error {
	return errors.WithMessagef(domain.ErrStoreUnavailable, "%s: %v", op, err)
}
