package assembly

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"isp-admission-service/conf"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/app"
	"github.com/txix-open/isp-kit/bootstrap"
	"github.com/txix-open/isp-kit/cluster"
	"github.com/txix-open/isp-kit/http"
	"github.com/txix-open/isp-kit/log"
)

type Assembly struct {
	boot       *bootstrap.Bootstrap
	server     *http.Server
	logger     *log.Adapter
	redisCli   redis.UniversalClient
	pathPrefix string
}

func New(boot *bootstrap.Bootstrap) (*Assembly, error) {
	localConfig := conf.Local{}
	err := boot.App.Config().Read(&localConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "read local config")
	}

	return &Assembly{
		boot:       boot,
		server:     http.NewServer(boot.App.Logger()),
		logger:     boot.App.Logger(),
		pathPrefix: localConfig.GetPathPrefix(),
	}, nil
}

func (a *Assembly) ReceiveConfig(ctx context.Context, remoteConfig []byte) error {
	var (
		newCfg  conf.Remote
		prevCfg conf.Remote
	)
	err := a.boot.RemoteConfig.Upgrade(remoteConfig, &newCfg, &prevCfg)
	if err != nil {
		a.logger.Fatal(ctx, errors.WithMessage(err, "upgrade remote config"))
	}
	err = newCfg.Validate()
	if err != nil {
		a.logger.Fatal(ctx, errors.WithMessage(err, "invalid remote config"))
	}

	a.logger.SetLevel(newCfg.Logging.LogLevel)

	var newRedisCli redis.UniversalClient
	if newCfg.Redis != nil {
		newRedisCli = a.redisClient(*newCfg.Redis)
	}

	// the whole handler graph is rebuilt from the new config snapshot and
	// swapped atomically, in-flight requests finish on the previous one
	locator := NewLocator(a.logger)
	handler := locator.Handler(newCfg, a.pathPrefix, newRedisCli)
	a.server.Upgrade(handler)

	if a.redisCli != nil {
		// requests already running on the previous handler graph may still
		// use this client, so it is closed only after they had time to finish
		closeLater(a.redisCli, oldRedisCloseDelay)
	}
	a.redisCli = newRedisCli

	return nil
}

const oldRedisCloseDelay = 30 * time.Second

func closeLater(cli redis.UniversalClient, delay time.Duration) {
	time.AfterFunc(delay, func() {
		_ = cli.Close()
	})
}

func (a *Assembly) Runners() []app.Runner {
	eventHandler := cluster.NewEventHandler().
		RemoteConfigReceiver(a)

	return []app.Runner{
		app.RunnerFunc(func(ctx context.Context) error {
			return a.server.ListenAndServe(a.boot.BindingAddress)
		}),
		app.RunnerFunc(func(ctx context.Context) error {
			return a.boot.ClusterCli.Run(ctx, eventHandler)
		}),
	}
}

func (a *Assembly) Closers() []app.Closer {
	return []app.Closer{
		a.boot.ClusterCli,
		app.CloserFunc(func() error {
			return a.server.Shutdown(context.Background())
		}),
		app.CloserFunc(func() error {
			if a.redisCli != nil {
				return a.redisCli.Close()
			}
			return nil
		}),
	}
}

func (a *Assembly) redisClient(config conf.Redis) redis.UniversalClient {
	if config.Sentinel != nil {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       config.Sentinel.MasterName,
			SentinelAddrs:    config.Sentinel.Addresses,
			SentinelUsername: config.Sentinel.Username,
			SentinelPassword: config.Sentinel.Password,
			Username:         config.Username,
			Password:         config.Password,
			// socket reads must respect the per-call store timeout,
			// not the client-wide ReadTimeout
			ContextTimeoutEnabled: true,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:                  config.Address,
		Username:              config.Username,
		Password:              config.Password,
		ContextTimeoutEnabled: true,
	})
}
