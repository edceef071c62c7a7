package middleware

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"isp-admission-service/request"
)

func Entrypoint(maxReqBodySize int64, next Handler, pathPrefix string, trustProxyHeaders bool, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(writer, req.Body, maxReqBodySize)
		endpoint := strings.TrimPrefix(req.URL.Path, pathPrefix)
		clientAddress := request.ClientAddress(req, trustProxyHeaders)
		ctx := request.NewContext(req, writer, endpoint, clientAddress)
		err := next.Handle(ctx)
		if err != nil {
			logger.Error(req.Context(), errors.WithMessage(err, "uncaught error"))
		}
	})
}
