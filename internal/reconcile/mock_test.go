package reconcile

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/evanofslack/cf-zone-sync/internal/diff"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/redirect"
)

type MockProvider struct {
	mu        sync.Mutex
	settings  []provider.Setting
	pageRules []provider.PageRule
	// errs keyed by "<method>" or "<method>:<rule id>"
	errs  map[string]error
	calls []string
	next  int
}

func (m *MockProvider) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if err, ok := m.errs[call]; ok {
		return err
	}
	return nil
}

func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Mutations counts calls that would change remote state.
func (m *MockProvider) Mutations() int {
	n := 0
	for _, c := range m.Calls() {
		switch c {
		case "Settings", "PageRules", "Zone", "ListZones":
			continue
		}
		n++
	}
	return n
}

func (m *MockProvider) Zone(ctx context.Context, zoneID string) (provider.Zone, error) {
	return provider.Zone{ID: zoneID}, m.record("Zone")
}

func (m *MockProvider) ListZones(ctx context.Context, accountID string) ([]provider.Zone, error) {
	return nil, m.record("ListZones")
}

func (m *MockProvider) Settings(ctx context.Context, zoneID string) ([]provider.Setting, error) {
	return m.settings, m.record("Settings")
}

func (m *MockProvider) UpdateSettings(ctx context.Context, zoneID string, settings []provider.Setting) error {
	return m.record("UpdateSettings")
}

func (m *MockProvider) PageRules(ctx context.Context, zoneID string) ([]provider.PageRule, error) {
	return m.pageRules, m.record("PageRules")
}

func (m *MockProvider) CreatePageRule(ctx context.Context, zoneID string, rule provider.PageRule) (provider.PageRule, error) {
	if err := m.record("CreatePageRule"); err != nil {
		return provider.PageRule{}, err
	}
	m.mu.Lock()
	m.next++
	rule.ID = fmt.Sprintf("created-%d", m.next)
	m.mu.Unlock()
	return rule, nil
}

func (m *MockProvider) UpdatePageRule(ctx context.Context, zoneID, ruleID string, rule provider.PageRule) (provider.PageRule, error) {
	if err := m.record("UpdatePageRule:" + ruleID); err != nil {
		return provider.PageRule{}, err
	}
	rule.ID = ruleID
	return rule, nil
}

func (m *MockProvider) DeletePageRule(ctx context.Context, zoneID, ruleID string) error {
	return m.record("DeletePageRule:" + ruleID)
}

type MockStore struct {
	settings  map[string]any
	redirects map[string][]redirect.Rule
	err       error
}

func (m *MockStore) Settings() (map[string]any, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.settings == nil {
		return nil, fmt.Errorf("settings baseline: %w", fs.ErrNotExist)
	}
	return m.settings, nil
}

func (m *MockStore) Redirects(zone string) ([]redirect.Rule, error) {
	if m.err != nil {
		return nil, m.err
	}
	rules, ok := m.redirects[zone]
	if !ok {
		return nil, fmt.Errorf("redirects for %s: %w", zone, fs.ErrNotExist)
	}
	return rules, nil
}

type MockGate struct {
	answer  bool
	reason  string
	err     error
	prompts []string
}

func (m *MockGate) Confirm(ctx context.Context, prompt string) (bool, error) {
	m.prompts = append(m.prompts, prompt)
	return m.answer, m.err
}

type reasonGate struct{ MockGate }

func (g *reasonGate) DeclineReason() string { return g.reason }

type MockPresenter struct {
	health   []int
	diffs    int
	results  [][]PlanResult
	listed   [][]provider.PageRule
	outcomes []Outcome
}

func (m *MockPresenter) ZoneHealth(zone provider.Zone, used int) { m.health = append(m.health, used) }
func (m *MockPresenter) SettingsDiff(zone string, d map[string]diff.Entry) {
	m.diffs++
}
func (m *MockPresenter) RedirectsDiff(zone string, d map[int]diff.Entry) {
	m.diffs++
}
func (m *MockPresenter) RedirectResults(zone string, results []PlanResult) {
	m.results = append(m.results, results)
}
func (m *MockPresenter) PageRules(zone string, rules []provider.PageRule) {
	m.listed = append(m.listed, rules)
}
func (m *MockPresenter) Outcome(o Outcome) { m.outcomes = append(m.outcomes, o) }

func forwardRule(id, matcher, url string, status int) provider.PageRule {
	return provider.PageRule{
		ID:       id,
		Priority: 1,
		Status:   provider.RuleActive,
		Matcher:  matcher,
		Forward:  &provider.Forward{URL: url, StatusCode: status},
	}
}
