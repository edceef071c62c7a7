package assembly

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"isp-admission-service/conf"
	"isp-admission-service/handler"
	"isp-admission-service/middleware"
	"isp-admission-service/repository"
	"isp-admission-service/service"

	"github.com/txix-open/isp-kit/log"
)

type Locator struct {
	logger log.Logger
}

func NewLocator(logger log.Logger) Locator {
	return Locator{
		logger: logger,
	}
}

func (l Locator) Handler(config conf.Remote, pathPrefix string, redisCli redis.UniversalClient) http.Handler {
	admissionRepo := repository.NewAdmission(redisCli, config.Admission.GetStoreTimeout())
	resolver := service.NewResolver(config.Admission, l.logger)
	limiter := service.NewLimiter(admissionRepo, resolver, config.Admission.FailClosed, l.logger)

	checkHandler := middleware.Chain(
		handler.NewAdmission(limiter),
		middleware.RequestId(),
		middleware.Logger(l.logger, config.Logging.RequestLogEnable),
		middleware.ErrorHandler(l.logger),
		middleware.Authenticate(),
	)

	entrypoint := middleware.Entrypoint(
		config.Http.MaxRequestBodySizeInKb*1024, //nolint:mnd
		checkHandler,
		pathPrefix,
		config.Admission.TrustProxyHeaders,
		l.logger,
	)

	mux := http.NewServeMux()
	mux.Handle(fmt.Sprintf("POST %s/check", pathPrefix), entrypoint)

	return mux
}
