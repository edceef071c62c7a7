package handler

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/json"
	"isp-admission-service/domain"
	"isp-admission-service/httperrors"
	"isp-admission-service/request"
)

type CheckRequest struct {
	CredentialId  string `json:"credentialId"`
	Tier          string `json:"tier"`
	ClientAddress string `json:"clientAddress"`
	Endpoint      string `json:"endpoint"`
	Cost          int    `json:"cost"`
}

type CheckResponse struct {
	Allowed        bool   `json:"allowed"`
	Limit          int    `json:"limit"`
	Remaining      int    `json:"remaining"`
	WindowInSec    int    `json:"windowInSec"`
	RetryAfterInMs int64  `json:"retryAfterInMs"`
	DeniedScope    string `json:"deniedScope,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
}

type AdmissionLimiter interface {
	Check(ctx context.Context, req domain.CheckRequest) (*domain.AggregatedDecision, error)
}

type Admission struct {
	limiter AdmissionLimiter
}

func NewAdmission(limiter AdmissionLimiter) Admission {
	return Admission{
		limiter: limiter,
	}
}

// Handle serves the admission check for routing layers that run out of
// process. The caller passes the original requester context in the body;
// an omitted client address falls back to the caller's own address.
func (h Admission) Handle(ctx *request.Context) error {
	req := CheckRequest{}
	err := json.NewDecoder(ctx.Request().Body).Decode(&req)
	if err != nil {
		return httperrors.New(
			http.StatusBadRequest,
			"invalid request body",
			errors.WithMessage(err, "admission: decode request"),
		)
	}
	if req.Endpoint == "" {
		return httperrors.New(
			http.StatusBadRequest,
			"endpoint is required",
			errors.New("admission: endpoint is required"),
		)
	}
	if req.ClientAddress == "" {
		req.ClientAddress = ctx.ClientAddress()
	}

	decision, err := h.limiter.Check(ctx.Context(), domain.CheckRequest{
		CredentialId:  req.CredentialId,
		Tier:          req.Tier,
		ClientAddress: req.ClientAddress,
		Endpoint:      req.Endpoint,
		Cost:          req.Cost,
	})
	if errors.Is(err, domain.ErrInvalidRequest) {
		return httperrors.New(
			http.StatusBadRequest,
			"unidentifiable request",
			errors.WithMessage(err, "admission: check"),
		)
	}
	if err != nil {
		return errors.WithMessage(err, "admission: check")
	}

	writer := ctx.ResponseWriter()
	writer.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(writer).Encode(CheckResponse{
		Allowed:        decision.Allow,
		Limit:          decision.Limit,
		Remaining:      decision.Remaining,
		WindowInSec:    int(decision.Window.Seconds()),
		RetryAfterInMs: decision.RetryAfter.Milliseconds(),
		DeniedScope:    string(decision.DeniedScope),
		Degraded:       decision.Degraded,
	})
}
