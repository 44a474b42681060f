package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"golang.org/x/time/rate"

	"github.com/evanofslack/cf-zone-sync/internal/config"
	"github.com/evanofslack/cf-zone-sync/internal/metrics"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
)

const (
	actionForwardingURL = "forwarding_url"
	targetURL           = "url"
	operatorMatches     = "matches"

	requestTimeout = 30 * time.Second
)

// api is the subset of *cloudflare.API used here.
type api interface {
	ZoneDetails(ctx context.Context, zoneID string) (cloudflare.Zone, error)
	ListZonesContext(ctx context.Context, opts ...cloudflare.ReqOption) (cloudflare.ZonesResponse, error)
	ZoneSettings(ctx context.Context, zoneID string) (*cloudflare.ZoneSettingResponse, error)
	UpdateZoneSettings(ctx context.Context, zoneID string, settings []cloudflare.ZoneSetting) (*cloudflare.ZoneSettingResponse, error)
	ListPageRules(ctx context.Context, zoneID string) ([]cloudflare.PageRule, error)
	CreatePageRule(ctx context.Context, zoneID string, rule cloudflare.PageRule) (*cloudflare.PageRule, error)
	UpdatePageRule(ctx context.Context, zoneID, ruleID string, rule cloudflare.PageRule) error
	DeletePageRule(ctx context.Context, zoneID, ruleID string) error
}

type CloudflareProvider struct {
	client  api
	metrics *metrics.Metrics
	limiter *rate.Limiter
}

func New(cfg config.Cloudflare, metrics *metrics.Metrics) (*CloudflareProvider, error) {
	token := cfg.Token
	if token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}

	opts := []cloudflare.Option{
		cloudflare.UserAgent("cf-zone-sync"),
		cloudflare.HTTPClient(&http.Client{
			Timeout:   requestTimeout,
			Transport: statusRecorder{next: http.DefaultTransport},
		}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, cloudflare.BaseURL(cfg.BaseURL))
	}
	client, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create cloudflare client: %w", err)
	}
	return newWithAPI(client, cfg.RateLimit, metrics), nil
}

func newWithAPI(client api, rps float64, metrics *metrics.Metrics) *CloudflareProvider {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &CloudflareProvider{
		client:  client,
		metrics: metrics,
		limiter: rate.NewLimiter(limit, burst),
	}
}

type statusKey struct{}

// statusRecorder stores the last HTTP status of a request into the *int
// carried by its context, since cloudflare-go drops it for most 4xx errors.
type statusRecorder struct {
	next http.RoundTripper
}

func (t statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if resp != nil {
		if code, ok := req.Context().Value(statusKey{}).(*int); ok {
			*code = resp.StatusCode
		}
	}
	return resp, err
}

func trackStatus(ctx context.Context) (context.Context, *int) {
	code := new(int)
	return context.WithValue(ctx, statusKey{}, code), code
}

func (p *CloudflareProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}
	return nil
}

func (p *CloudflareProvider) Zone(ctx context.Context, zoneID string) (provider.Zone, error) {
	if err := p.wait(ctx); err != nil {
		return provider.Zone{}, err
	}
	ctx, status := trackStatus(ctx)
	zone, err := p.client.ZoneDetails(ctx, zoneID)
	p.metrics.IncRemoteRequest("read", "zone", err == nil)
	if err != nil {
		return provider.Zone{}, fmt.Errorf("get zone %s: %w", zoneID, translateError(err, *status))
	}
	return fromZone(zone), nil
}

func (p *CloudflareProvider) ListZones(ctx context.Context, accountID string) ([]provider.Zone, error) {
	slog.Info("Listing zones", "account", accountID)
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	ctx, status := trackStatus(ctx)
	resp, err := p.client.ListZonesContext(ctx, cloudflare.WithZoneFilters("", accountID, ""))
	p.metrics.IncRemoteRequest("read", "zone", err == nil)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", translateError(err, *status))
	}

	zones := make([]provider.Zone, 0, len(resp.Result))
	for _, z := range resp.Result {
		zones = append(zones, fromZone(z))
	}
	slog.Debug("Listed zones", "account", accountID, "count", len(zones))
	return zones, nil
}

func (p *CloudflareProvider) Settings(ctx context.Context, zoneID string) ([]provider.Setting, error) {
	slog.Debug("Getting zone settings", "zone", zoneID)
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	ctx, status := trackStatus(ctx)
	resp, err := p.client.ZoneSettings(ctx, zoneID)
	p.metrics.IncRemoteRequest("read", "settings", err == nil)
	if err != nil {
		return nil, fmt.Errorf("get settings for zone %s: %w", zoneID, translateError(err, *status))
	}

	settings := make([]provider.Setting, 0, len(resp.Result))
	for _, s := range resp.Result {
		settings = append(settings, provider.Setting{ID: s.ID, Value: s.Value})
	}
	return settings, nil
}

func (p *CloudflareProvider) UpdateSettings(ctx context.Context, zoneID string, settings []provider.Setting) error {
	slog.Info("Updating zone settings", "zone", zoneID, "count", len(settings))
	start := time.Now()
	if err := p.wait(ctx); err != nil {
		return err
	}
	ctx, status := trackStatus(ctx)

	items := make([]cloudflare.ZoneSetting, 0, len(settings))
	for _, s := range settings {
		items = append(items, cloudflare.ZoneSetting{ID: s.ID, Value: s.Value})
	}
	_, err := p.client.UpdateZoneSettings(ctx, zoneID, items)
	p.metrics.IncRemoteRequest("update", "settings", err == nil)
	if err != nil {
		return fmt.Errorf("update settings for zone %s: %w", zoneID, translateError(err, *status))
	}
	slog.Debug("Updated zone settings", "zone", zoneID, "duration", time.Since(start))
	return nil
}

func (p *CloudflareProvider) PageRules(ctx context.Context, zoneID string) ([]provider.PageRule, error) {
	slog.Debug("Getting page rules", "zone", zoneID)
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	ctx, status := trackStatus(ctx)
	rules, err := p.client.ListPageRules(ctx, zoneID)
	p.metrics.IncRemoteRequest("read", "pagerule", err == nil)
	if err != nil {
		return nil, fmt.Errorf("list page rules for zone %s: %w", zoneID, translateError(err, *status))
	}

	result := make([]provider.PageRule, 0, len(rules))
	for _, r := range rules {
		result = append(result, fromPageRule(r))
	}
	return result, nil
}

func (p *CloudflareProvider) CreatePageRule(ctx context.Context, zoneID string, rule provider.PageRule) (provider.PageRule, error) {
	slog.Info("Creating page rule", "zone", zoneID, "matcher", rule.Matcher)
	if err := p.wait(ctx); err != nil {
		return provider.PageRule{}, err
	}
	ctx, status := trackStatus(ctx)
	created, err := p.client.CreatePageRule(ctx, zoneID, toPageRule(rule))
	p.metrics.IncRemoteRequest("create", "pagerule", err == nil)
	if err != nil {
		return provider.PageRule{}, fmt.Errorf("create page rule: %w", translateError(err, *status))
	}
	if created == nil {
		return rule, nil
	}
	return fromPageRule(*created), nil
}

func (p *CloudflareProvider) UpdatePageRule(ctx context.Context, zoneID, ruleID string, rule provider.PageRule) (provider.PageRule, error) {
	slog.Info("Updating page rule", "zone", zoneID, "rule", ruleID, "matcher", rule.Matcher)
	if err := p.wait(ctx); err != nil {
		return provider.PageRule{}, err
	}
	ctx, status := trackStatus(ctx)
	err := p.client.UpdatePageRule(ctx, zoneID, ruleID, toPageRule(rule))
	p.metrics.IncRemoteRequest("update", "pagerule", err == nil)
	if err != nil {
		return provider.PageRule{}, fmt.Errorf("update page rule %s: %w", ruleID, translateError(err, *status))
	}
	rule.ID = ruleID
	return rule, nil
}

func (p *CloudflareProvider) DeletePageRule(ctx context.Context, zoneID, ruleID string) error {
	slog.Info("Deleting page rule", "zone", zoneID, "rule", ruleID)
	if err := p.wait(ctx); err != nil {
		return err
	}
	ctx, status := trackStatus(ctx)
	err := p.client.DeletePageRule(ctx, zoneID, ruleID)
	p.metrics.IncRemoteRequest("delete", "pagerule", err == nil)
	if err != nil {
		return fmt.Errorf("delete page rule %s: %w", ruleID, translateError(err, *status))
	}
	return nil
}

func fromZone(z cloudflare.Zone) provider.Zone {
	return provider.Zone{
		ID:            z.ID,
		Name:          z.Name,
		PlanName:      z.Plan.Name,
		PageRuleQuota: z.Meta.PageRuleQuota,
	}
}

func fromPageRule(r cloudflare.PageRule) provider.PageRule {
	out := provider.PageRule{
		ID:       r.ID,
		Priority: r.Priority,
		Status:   provider.RuleStatus(r.Status),
	}
	for _, t := range r.Targets {
		if t.Target == targetURL {
			out.Matcher = t.Constraint.Value
			break
		}
	}
	for _, a := range r.Actions {
		if a.ID != actionForwardingURL || out.Forward != nil {
			out.Other = append(out.Other, a.ID)
			continue
		}
		fwd, ok := parseForward(a.Value)
		if !ok {
			out.Other = append(out.Other, a.ID)
			continue
		}
		out.Forward = fwd
	}
	return out
}

func parseForward(v any) (*provider.Forward, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	url, ok := m["url"].(string)
	if !ok {
		return nil, false
	}
	fwd := &provider.Forward{URL: url, StatusCode: http.StatusMovedPermanently}
	switch code := m["status_code"].(type) {
	case float64:
		fwd.StatusCode = int(code)
	case int:
		fwd.StatusCode = code
	}
	return fwd, true
}

func toPageRule(r provider.PageRule) cloudflare.PageRule {
	target := cloudflare.PageRuleTarget{Target: targetURL}
	target.Constraint.Operator = operatorMatches
	target.Constraint.Value = r.Matcher

	status := string(r.Status)
	if status == "" {
		status = string(provider.RuleActive)
	}
	out := cloudflare.PageRule{
		Targets:  []cloudflare.PageRuleTarget{target},
		Priority: r.Priority,
		Status:   status,
	}
	if r.Forward != nil {
		out.Actions = []cloudflare.PageRuleAction{{
			ID: actionForwardingURL,
			Value: map[string]any{
				"url":         r.Forward.URL,
				"status_code": r.Forward.StatusCode,
			},
		}}
	}
	return out
}

// translateError maps cloudflare-go error types onto provider.APIError so
// the executor can classify by status code alone. status is the recorded HTTP
// status, 0 when none was seen.
//
// cloudflare-go names the auth errors the other way round: 401 is returned as
// AuthorizationError and 403 as AuthenticationError. Any other 4xx ends up in
// RequestError, so the recorded status wins over the type-based guess.
func translateError(err error, status int) error {
	var (
		code     int
		messages []string
	)
	var authn *cloudflare.AuthenticationError
	var authz *cloudflare.AuthorizationError
	var notFound *cloudflare.NotFoundError
	var req *cloudflare.RequestError
	var ratelimit *cloudflare.RatelimitError
	var service *cloudflare.ServiceError
	switch {
	case errors.As(err, &authn):
		code, messages = http.StatusForbidden, authn.ErrorMessages()
	case errors.As(err, &authz):
		code, messages = http.StatusUnauthorized, authz.ErrorMessages()
	case errors.As(err, &notFound):
		code, messages = http.StatusNotFound, notFound.ErrorMessages()
	case errors.As(err, &req):
		code, messages = http.StatusBadRequest, req.ErrorMessages()
	case errors.As(err, &ratelimit):
		code, messages = http.StatusTooManyRequests, ratelimit.ErrorMessages()
	case errors.As(err, &service):
		code, messages = http.StatusInternalServerError, service.ErrorMessages()
	default:
		return err
	}
	if status >= http.StatusBadRequest {
		code = status
	}
	return &provider.APIError{StatusCode: code, Detail: strings.Join(messages, "; "), Err: err}
}
