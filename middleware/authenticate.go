package middleware

import (
	"isp-admission-service/request"
)

const (
	credentialIdHeader   = "x-credential-id"
	credentialTierHeader = "x-credential-tier"
)

// Authenticate reads the credential identity supplied by the external
// credential-validation component. The identity is trusted as-is; a request
// without one is treated as anonymous and limited by address only.
func Authenticate() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			credentialId := ctx.Param(credentialIdHeader)
			tier := ctx.Param(credentialTierHeader)
			ctx.SetCredential(credentialId, tier)

			return next.Handle(ctx)
		})
	}
}
