package conf

import (
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"github.com/txix-open/isp-kit/rc/schema"
	"github.com/txix-open/jsonschema"
)

const (
	defaultStoreTimeout = 50 * time.Millisecond
	defaultTier         = "default"
	defaultCategory     = "default"
)

func init() {
	schema.CustomGenerators.Register("logLevel", func(field reflect.StructField, t *jsonschema.Schema) {
		t.Type = "string"
		t.Enum = []interface{}{"debug", "info", "error", "fatal"}
	})
}

type Remote struct {
	Redis     *Redis    `schema:"Настройки Redis,обязательно, если заданы правила ограничений"`
	Http      Http      `schema:"Настройки HTTP"`
	Logging   Logging   `schema:"Настройки логирования"`
	Admission Admission `schema:"Настройки контроля допуска"`
}

type Http struct {
	MaxRequestBodySizeInKb int64 `valid:"required" schema:"Максимальная длина тела запроса,в килобайтах"`
}

type Logging struct {
	LogLevel         log.Level `schemaGen:"logLevel" schema:"Уровень логирования,логирование запросов осуществляется на уровне debug"`
	RequestLogEnable bool      `schema:"Включить логирование запросов"`
}

type Admission struct {
	FailClosed        bool               `schema:"Отклонять запросы при недоступности Redis,по умолчанию при сбое хранилища запросы пропускаются"`
	StoreTimeoutInMs  int                `schema:"Таймаут обращения к Redis,в миллисекундах, по умолчанию: 50"`
	TrustProxyHeaders bool               `schema:"Доверять заголовкам прокси,адрес клиента берётся из X-Forwarded-For; включать только за доверенным прокси"`
	DefaultTier       string             `schema:"Тариф по умолчанию,используется, если тариф не передан, по умолчанию: default"`
	ExemptEndpoints   []string           `schema:"Шаблоны путей без ограничений,поддерживается '/*' для неполного совпадения"`
	Categories        []EndpointCategory `schema:"Категории конечных точек,путь вне категорий попадает в категорию default"`
	Rules             []LimitRule        `schema:"Правила ограничений"`
}

type EndpointCategory struct {
	Name     string   `valid:"required" schema:"Название категории"`
	Patterns []string `valid:"required" schema:"Шаблоны путей,поддерживается '/*' для неполного совпадения"`
}

type LimitRule struct {
	Scope       string `valid:"required,in(global|credential|client_address|endpoint_category)" schema:"Область ограничения"`
	Category    string `schema:"Категория конечных точек,пусто — правило действует для любой категории"`
	Tier        string `schema:"Тариф,только для области credential; пусто — правило действует для любого тарифа"`
	Algorithm   string `valid:"required,in(token_bucket|sliding_window|fixed_window)" schema:"Алгоритм подсчёта"`
	Limit       int    `valid:"required" schema:"Количество запросов за окно"`
	WindowInSec int    `valid:"required" schema:"Длительность окна,в секундах"`
	Burst       int    `schema:"Допустимое кратковременное превышение"`
}

type Redis struct {
	Address  string         `schema:"Адрес,обязательно, если sentinel не указан"`
	Username string         `schema:"Имя пользователя"`
	Password string         `schema:"Пароль"`
	Sentinel *RedisSentinel `schema:"Настройки sentinel,обязательно, если address не указан"`
}

type RedisSentinel struct {
	Addresses  []string `valid:"required" schema:"Адреса нод в кластере"`
	MasterName string   `valid:"required" schema:"Имя мастера"`
	Username   string   `schema:"Имя пользователя в sentinel"`
	Password   string   `schema:"Пароль в sentinel"`
}

func (r Remote) Validate() error {
	if len(r.Admission.Rules) > 0 && r.Redis == nil {
		return errors.New("redis is required if admission rules were specified")
	}
	if r.Redis != nil && r.Redis.Sentinel == nil && r.Redis.Address == "" {
		return errors.New("invalid redis config. sentinel or address are required")
	}
	for i, rule := range r.Admission.Rules {
		err := rule.validate()
		if err != nil {
			return errors.WithMessagef(err, "invalid admission rule at index %d", i)
		}
	}
	return nil
}

func (r LimitRule) validate() error {
	if r.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	if r.WindowInSec <= 0 {
		return errors.New("window must be positive")
	}
	if r.Burst < 0 {
		return errors.New("burst must not be negative")
	}
	if r.Tier != "" && r.Scope != "credential" {
		return errors.Errorf("tier is applicable to credential scope only, got '%s'", r.Scope)
	}
	return nil
}

func (r LimitRule) Window() time.Duration {
	return time.Duration(r.WindowInSec) * time.Second
}

func (a Admission) GetStoreTimeout() time.Duration {
	if a.StoreTimeoutInMs <= 0 {
		return defaultStoreTimeout
	}
	return time.Duration(a.StoreTimeoutInMs) * time.Millisecond
}

func (a Admission) GetDefaultTier() string {
	if a.DefaultTier == "" {
		return defaultTier
	}
	return a.DefaultTier
}

func (a Admission) GetDefaultCategory() string {
	return defaultCategory
}
