// Package redirect converts between declarative redirect rules and the
// provider's page rules.
package redirect

import (
	"net/http"

	"github.com/evanofslack/cf-zone-sync/internal/provider"
)

// DefaultStatus is used when a rule does not name a status code.
const DefaultStatus = http.StatusMovedPermanently

// Rule is one declared redirect. Field names follow the on-disk format.
type Rule struct {
	Base   string `yaml:"base,omitempty"`
	To     string `yaml:"to" validate:"required"`
	Status int    `yaml:"status,omitempty" validate:"omitempty,oneof=301 302 303 307 308"`
}

// WithDefaults fills Base with the wildcard of domain and Status with 301.
func (r Rule) WithDefaults(domain string) Rule {
	if r.Base == "" {
		r.Base = "*" + domain
	}
	if r.Status == 0 {
		r.Status = DefaultStatus
	}
	return r
}

// ToPageRule builds an active forwarding page rule. Priority and id are left
// for the provider to assign.
func ToPageRule(rule Rule, zoneWildcard string) provider.PageRule {
	matcher := rule.Base
	if matcher == "" {
		matcher = zoneWildcard
	}
	status := rule.Status
	if status == 0 {
		status = DefaultStatus
	}
	return provider.PageRule{
		Status:  provider.RuleActive,
		Matcher: matcher,
		Forward: &provider.Forward{
			URL:        rule.To,
			StatusCode: status,
		},
	}
}

// ToRules projects forwarding page rules into declarative rules, keeping
// input order. Rules with any other action are skipped.
func ToRules(pageRules []provider.PageRule) []Rule {
	fwd := Forwarding(pageRules)
	rules := make([]Rule, 0, len(fwd))
	for _, pr := range fwd {
		rules = append(rules, Rule{
			Base:   pr.Matcher,
			To:     pr.Forward.URL,
			Status: pr.Forward.StatusCode,
		})
	}
	return rules
}

// Forwarding returns the page rules ToRules keeps, index for index.
func Forwarding(pageRules []provider.PageRule) []provider.PageRule {
	out := make([]provider.PageRule, 0, len(pageRules))
	for _, pr := range pageRules {
		if pr.IsRedirect() {
			out = append(out, pr)
		}
	}
	return out
}
