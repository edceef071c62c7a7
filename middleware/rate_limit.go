package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"isp-admission-service/domain"
	"isp-admission-service/httperrors"
	"isp-admission-service/request"
)

const (
	retryAfterHeader         = "Retry-After"
	rateLimitLimitHeader     = "X-RateLimit-Limit"
	rateLimitRemainingHeader = "X-RateLimit-Remaining"
	rateLimitResetHeader     = "X-RateLimit-Reset"
)

type AdmissionLimiter interface {
	Check(ctx context.Context, req domain.CheckRequest) (*domain.AggregatedDecision, error)
}

func RateLimit(limiter AdmissionLimiter) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			decision, err := limiter.Check(ctx.Context(), domain.CheckRequest{
				CredentialId:  ctx.CredentialId(),
				Tier:          ctx.Tier(),
				ClientAddress: ctx.ClientAddress(),
				Endpoint:      ctx.Endpoint(),
			})
			if errors.Is(err, domain.ErrInvalidRequest) {
				return httperrors.New(
					http.StatusBadRequest,
					"unidentifiable request",
					errors.WithMessage(err, "rate limit: check"),
				)
			}
			if err != nil {
				return errors.WithMessage(err, "rate limit: check")
			}

			writeRateLimitHeaders(ctx.ResponseWriter(), decision)
			if !decision.Allow {
				return httperrors.New(
					http.StatusTooManyRequests,
					fmt.Sprintf("rate limit has been reached, try after %dms", decision.RetryAfter.Milliseconds()),
					errors.Errorf("rate limit: '%s' scope limit has been reached for credential '%s'",
						decision.DeniedScope, ctx.CredentialId()),
				)
			}

			return next.Handle(ctx)
		})
	}
}

func writeRateLimitHeaders(writer http.ResponseWriter, decision *domain.AggregatedDecision) {
	if decision.Remaining == domain.UnlimitedRemaining && decision.Allow {
		return
	}

	header := writer.Header()
	header.Set(rateLimitLimitHeader, strconv.Itoa(decision.Limit))
	header.Set(rateLimitRemainingHeader, strconv.Itoa(max(decision.Remaining, 0)))
	header.Set(rateLimitResetHeader, strconv.Itoa(ceilSeconds(decision.Window)))
	if !decision.Allow {
		header.Set(retryAfterHeader, strconv.Itoa(ceilSeconds(decision.RetryAfter)))
	}
}

func ceilSeconds(d time.Duration) int {
	seconds := int(d / time.Second)
	if d%time.Second > 0 {
		seconds++
	}
	return seconds
}
