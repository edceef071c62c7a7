package service

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"isp-admission-service/domain"
)

type AdmissionRepo interface {
	Allow(
		ctx context.Context,
		scope domain.ScopeType,
		identifier string,
		params domain.LimitParams,
		cost int,
	) (*domain.RateLimitResult, error)
}

type Limiter struct {
	repo       AdmissionRepo
	resolver   Resolver
	failClosed bool
	logger     log.Logger
	degraded   *atomic.Int64
}

func NewLimiter(repo AdmissionRepo, resolver Resolver, failClosed bool, logger log.Logger) Limiter {
	return Limiter{
		repo:       repo,
		resolver:   resolver,
		failClosed: failClosed,
		logger:     logger,
		degraded:   &atomic.Int64{},
	}
}

// Check evaluates all scopes applicable to the request in resolver order.
// Evaluation stops at the first denying scope and its result becomes the
// decision; scopes that passed before it keep their consumed budget.
// When every scope passes, the decision carries the most restrictive
// remaining budget across them.
func (s Limiter) Check(ctx context.Context, req domain.CheckRequest) (*domain.AggregatedDecision, error) {
	if req.Cost <= 0 {
		req.Cost = 1
	}

	checks, err := s.resolver.ResolveScopes(req)
	if err != nil {
		return nil, errors.WithMessage(err, "resolve scopes")
	}

	decision := &domain.AggregatedDecision{
		Allow:     true,
		Remaining: domain.UnlimitedRemaining,
	}
	for _, check := range checks {
		result, err := s.repo.Allow(ctx, check.Scope, check.Identifier, check.Params, req.Cost)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return s.storeUnavailable(ctx, check, err), nil
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "allow scope '%s'", check.Scope)
		}

		if !result.Allow {
			return &domain.AggregatedDecision{
				Allow:       false,
				Limit:       result.Limit,
				Remaining:   result.Remaining,
				Window:      result.Window,
				RetryAfter:  result.RetryAfter,
				DeniedScope: check.Scope,
			}, nil
		}

		if decision.Remaining == domain.UnlimitedRemaining || result.Remaining < decision.Remaining {
			decision.Limit = result.Limit
			decision.Remaining = result.Remaining
			decision.Window = result.Window
		}
	}

	return decision, nil
}

// DegradedAdmissions returns the number of decisions made without the store.
func (s Limiter) DegradedAdmissions() int64 {
	return s.degraded.Load()
}

func (s Limiter) storeUnavailable(ctx context.Context, check ScopeCheck, err error) *domain.AggregatedDecision {
	s.degraded.Add(1)

	if s.failClosed {
		s.logger.Error(ctx, errors.WithMessage(err, "admission: fail closed"),
			log.String("scope", string(check.Scope)),
		)
		return &domain.AggregatedDecision{
			Allow:       false,
			Limit:       check.Params.Limit,
			Window:      check.Params.Window,
			RetryAfter:  check.Params.Window,
			DeniedScope: check.Scope,
			Degraded:    true,
		}
	}

	s.logger.Error(ctx, errors.WithMessage(err, "admission: fail open"),
		log.String("scope", string(check.Scope)),
	)
	return &domain.AggregatedDecision{
		Allow:     true,
		Remaining: domain.UnlimitedRemaining,
		Degraded:  true,
	}
}
