package provider

import (
	"context"
	"errors"
	"fmt"
)

// Client is the typed view of the Cloudflare API the reconcilers need.
type Client interface {
	Zone(ctx context.Context, zoneID string) (Zone, error)
	ListZones(ctx context.Context, accountID string) ([]Zone, error)
	Settings(ctx context.Context, zoneID string) ([]Setting, error)
	UpdateSettings(ctx context.Context, zoneID string, settings []Setting) error
	PageRules(ctx context.Context, zoneID string) ([]PageRule, error)
	CreatePageRule(ctx context.Context, zoneID string, rule PageRule) (PageRule, error)
	UpdatePageRule(ctx context.Context, zoneID, ruleID string, rule PageRule) (PageRule, error)
	DeletePageRule(ctx context.Context, zoneID, ruleID string) error
}

type Zone struct {
	ID            string
	Name          string
	PlanName      string
	PageRuleQuota int
}

// Wildcard is the default page rule matcher covering the whole zone.
func (z Zone) Wildcard() string {
	return "*" + z.Name
}

type Setting struct {
	ID    string
	Value any
}

type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RuleDisabled RuleStatus = "disabled"
)

type Forward struct {
	URL        string
	StatusCode int
}

type PageRule struct {
	ID       string
	Priority int
	Status   RuleStatus
	Matcher  string
	Forward  *Forward
	// Other holds ids of actions outside the forwarding subset.
	Other []string
}

// IsRedirect reports whether the rule is a pure forwarding rule.
func (r PageRule) IsRedirect() bool {
	return r.Forward != nil && len(r.Other) == 0
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api status %d: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
