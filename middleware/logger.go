package middleware

import (
	"net/http"

	"github.com/txix-open/isp-kit/log"
	"isp-admission-service/request"
)

type writerWrapper struct {
	http.ResponseWriter

	statusCode int
}

func (w *writerWrapper) StatusCode() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *writerWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func Logger(logger log.Logger, enableRequestLogging bool) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			if !enableRequestLogging {
				return next.Handle(ctx)
			}

			writer := &writerWrapper{ResponseWriter: ctx.ResponseWriter()}
			ctx.SetResponseWriter(writer)

			err := next.Handle(ctx)

			logger.Debug(ctx.Context(), "log request",
				log.String("httpMethod", ctx.Request().Method),
				log.String("remoteAddr", ctx.Request().RemoteAddr),
				log.String("clientAddress", ctx.ClientAddress()),
				log.Int("statusCode", writer.StatusCode()),
				log.String("endpoint", ctx.Endpoint()),
				log.String("credentialId", ctx.CredentialId()),
			)

			return err
		})
	}
}
