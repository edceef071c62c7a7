package service

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"isp-admission-service/conf"
	"isp-admission-service/domain"
	"isp-admission-service/service/matcher"
)

const (
	globalIdentifier = "global"
)

type ScopeCheck struct {
	Scope      domain.ScopeType
	Identifier string
	Params     domain.LimitParams
}

type ruleKey struct {
	scope    domain.ScopeType
	category string
	tier     string
}

type endpointCategory struct {
	name    string
	matcher matcher.AtLeastOneMatcher
}

type Resolver struct {
	exempt          matcher.AtLeastOneMatcher
	categories      []endpointCategory
	rules           map[ruleKey]domain.LimitParams
	defaultTier     string
	defaultCategory string
	loggedGaps      *sync.Map
	logger          log.Logger
}

func NewResolver(config conf.Admission, logger log.Logger) Resolver {
	categories := make([]endpointCategory, 0, len(config.Categories))
	for _, category := range config.Categories {
		categories = append(categories, endpointCategory{
			name:    category.Name,
			matcher: matcher.NewAtLeastOneMatcher(category.Patterns),
		})
	}

	rules := make(map[ruleKey]domain.LimitParams)
	for _, rule := range config.Rules {
		key := ruleKey{
			scope:    domain.ScopeType(rule.Scope),
			category: rule.Category,
			tier:     rule.Tier,
		}
		rules[key] = domain.LimitParams{
			Algorithm: domain.Algorithm(rule.Algorithm),
			Limit:     rule.Limit,
			Window:    rule.Window(),
			Burst:     rule.Burst,
		}
	}

	return Resolver{
		exempt:          matcher.NewAtLeastOneMatcher(config.ExemptEndpoints),
		categories:      categories,
		rules:           rules,
		defaultTier:     config.GetDefaultTier(),
		defaultCategory: config.GetDefaultCategory(),
		loggedGaps:      &sync.Map{},
		logger:          logger,
	}
}

// ResolveScopes returns the ordered list of scope checks for the request.
// The order is fixed: global, credential, client_address, endpoint_category.
// An exempt endpoint yields an empty list.
func (r Resolver) ResolveScopes(req domain.CheckRequest) ([]ScopeCheck, error) {
	if r.exempt.Match(req.Endpoint) {
		return nil, nil
	}

	address, err := normalizeAddress(req.ClientAddress)
	if err != nil {
		return nil, err
	}

	category := r.category(req.Endpoint)
	tier := req.Tier
	if tier == "" {
		tier = r.defaultTier
	}

	checks := make([]ScopeCheck, 0, 4) //nolint:mnd
	checks = r.appendCheck(checks, domain.ScopeGlobal, globalIdentifier, category, "")
	if req.CredentialId != "" {
		checks = r.appendCheck(checks, domain.ScopeCredential, req.CredentialId, category, tier)
	}
	checks = r.appendCheck(checks, domain.ScopeClientAddress, address, category, "")
	checks = r.appendCheck(checks, domain.ScopeEndpointCategory, category, category, "")

	return checks, nil
}

func (r Resolver) appendCheck(
	checks []ScopeCheck,
	scope domain.ScopeType,
	identifier string,
	category string,
	tier string,
) []ScopeCheck {
	params, ok := r.lookup(scope, category, tier)
	if !ok {
		r.logGap(scope, category, tier)
		return checks
	}
	return append(checks, ScopeCheck{
		Scope:      scope,
		Identifier: identifier,
		Params:     params,
	})
}

func (r Resolver) lookup(scope domain.ScopeType, category string, tier string) (domain.LimitParams, bool) {
	keys := []ruleKey{
		{scope: scope, category: category, tier: tier},
		{scope: scope, category: "", tier: tier},
	}
	if tier != "" {
		keys = append(keys,
			ruleKey{scope: scope, category: category, tier: ""},
			ruleKey{scope: scope, category: "", tier: ""},
		)
	}
	for _, key := range keys {
		params, ok := r.rules[key]
		if ok {
			return params, true
		}
	}
	return domain.LimitParams{}, false
}

func (r Resolver) category(endpoint string) string {
	for _, category := range r.categories {
		if category.matcher.Match(endpoint) {
			return category.name
		}
	}
	return r.defaultCategory
}

// a scope without a configured rule is not limited, only reported once
func (r Resolver) logGap(scope domain.ScopeType, category string, tier string) {
	key := ruleKey{scope: scope, category: category, tier: tier}
	_, alreadyLogged := r.loggedGaps.LoadOrStore(key, true)
	if alreadyLogged {
		return
	}
	r.logger.Warn(context.Background(), "admission: no limit rule configured, scope is not limited",
		log.String("scope", string(scope)),
		log.String("category", category),
		log.String("tier", tier),
	)
}

func normalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.WithMessage(domain.ErrInvalidRequest, "empty client address")
	}
	if host, _, err := net.SplitHostPort(address); err == nil {
		address = host
	}
	addr, err := netip.ParseAddr(strings.Trim(address, "[]"))
	if err != nil {
		return "", errors.WithMessagef(domain.ErrInvalidRequest, "unparseable client address '%s'", address)
	}
	return addr.String(), nil
}
