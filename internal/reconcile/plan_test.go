package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanofslack/cf-zone-sync/internal/diff"
	"github.com/evanofslack/cf-zone-sync/internal/idgen"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/redirect"
)

func TestBuildSettingsPlan(t *testing.T) {
	current := map[string]any{"ssl": "flexible", "always_use_https": "off", "brotli": "on"}
	desired := map[string]any{"ssl": "full", "always_use_https": "on", "brotli": "on"}

	got := BuildSettingsPlan(diff.Mapping(current, desired))
	expected := []provider.Setting{
		{ID: "always_use_https", Value: "on"},
		{ID: "ssl", Value: "full"},
	}
	if d := cmp.Diff(expected, got); d != "" {
		t.Errorf("BuildSettingsPlan() mismatch (-want +got):\n%s", d)
	}
}

func TestBuildSettingsPlanNested(t *testing.T) {
	current := map[string]any{
		"security_header": map[string]any{"enabled": false, "max_age": float64(0)},
	}
	desired := map[string]any{
		"security_header": map[string]any{"enabled": true, "max_age": 0},
	}

	got := BuildSettingsPlan(diff.Mapping(current, desired))
	require.Len(t, got, 1)
	assert.Equal(t, "security_header", got[0].ID)
	assert.Equal(t, map[string]any{"enabled": true}, got[0].Value)
}

func TestBuildRedirectPlan(t *testing.T) {
	wildcard := "*example.com"
	a := redirect.Rule{Base: "*example.com/a", To: "https://a.example.com", Status: 301}
	b := redirect.Rule{Base: "*example.com/b", To: "https://b.example.com", Status: 302}
	c := redirect.Rule{Base: "*example.com/c", To: "https://c.example.com", Status: 301}

	liveA := forwardRule("id-a", a.Base, a.To, a.Status)
	liveB := forwardRule("id-b", b.Base, b.To, b.Status)

	tests := []struct {
		name     string
		current  []provider.PageRule
		desired  []redirect.Rule
		quota    int
		live     int
		expected []OpKind
		keys     []string
	}{
		{
			name:     "append one",
			current:  []provider.PageRule{liveA},
			desired:  []redirect.Rule{a, b},
			quota:    3,
			live:     1,
			expected: []OpKind{Create},
		},
		{
			name:     "drop trailing",
			current:  []provider.PageRule{liveA, liveB},
			desired:  []redirect.Rule{a},
			quota:    3,
			live:     2,
			expected: []OpKind{Delete},
			keys:     []string{"id-b"},
		},
		{
			name:     "replace in place",
			current:  []provider.PageRule{liveA, liveB},
			desired:  []redirect.Rule{a, c},
			quota:    2,
			live:     2,
			expected: []OpKind{Update},
			keys:     []string{"id-b"},
		},
		{
			name:     "update and create",
			current:  []provider.PageRule{liveA},
			desired:  []redirect.Rule{c, b},
			quota:    3,
			live:     1,
			expected: []OpKind{Update, Create},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diff.Sequence(redirect.ToRules(tt.current), tt.desired)
			ops, err := BuildRedirectPlan(d, RedirectPlanInput{
				Zone:         "example.com",
				Current:      tt.current,
				Desired:      tt.desired,
				ZoneWildcard: wildcard,
				Quota:        tt.quota,
				LiveCount:    tt.live,
			})
			require.NoError(t, err)

			kinds := make([]OpKind, len(ops))
			for i, op := range ops {
				kinds[i] = op.Kind
				switch op.Kind {
				case Create:
					assert.True(t, idgen.IsPlaceholder(op.TargetKey), "create key %q", op.TargetKey)
					require.NotNil(t, op.Payload)
				case Update:
					require.NotNil(t, op.Payload)
				case Delete:
					assert.Nil(t, op.Payload)
				}
			}
			assert.Equal(t, tt.expected, kinds)

			for i, key := range tt.keys {
				assert.Equal(t, key, ops[i].TargetKey)
			}
		})
	}
}

func TestBuildRedirectPlanSingleCreate(t *testing.T) {
	a := redirect.Rule{Base: "*example.com/a", To: "https://a.example.com", Status: 301}
	b := redirect.Rule{Base: "*example.com/b", To: "https://b.example.com", Status: 302}
	current := []provider.PageRule{forwardRule("id-a", a.Base, a.To, a.Status)}

	d := diff.Sequence(redirect.ToRules(current), []redirect.Rule{a, b})
	require.Len(t, d, 1)
	_, ok := d[1]
	require.True(t, ok)

	ops, err := BuildRedirectPlan(d, RedirectPlanInput{
		Current:      current,
		Desired:      []redirect.Rule{a, b},
		ZoneWildcard: "*example.com",
		Quota:        3,
		LiveCount:    1,
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, Create, ops[0].Kind)
	assert.Equal(t, redirect.ToPageRule(b, "*example.com"), *ops[0].Payload)
}

func TestBuildRedirectPlanQuota(t *testing.T) {
	a := redirect.Rule{Base: "*example.com/a", To: "https://a.example.com", Status: 301}
	b := redirect.Rule{Base: "*example.com/b", To: "https://b.example.com", Status: 301}
	current := []provider.PageRule{forwardRule("id-a", a.Base, a.To, a.Status)}

	d := diff.Sequence(redirect.ToRules(current), []redirect.Rule{a, b})
	ops, err := BuildRedirectPlan(d, RedirectPlanInput{
		Zone:      "example.com",
		Current:   current,
		Desired:   []redirect.Rule{a, b},
		Quota:     1,
		LiveCount: 1,
	})
	assert.Nil(t, ops)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "example.com")
}

func TestBuildRedirectPlanCountsUnsupportedRules(t *testing.T) {
	a := redirect.Rule{Base: "*example.com/a", To: "https://a.example.com", Status: 301}
	live := []provider.PageRule{
		{ID: "cache", Matcher: "*example.com/static/*", Other: []string{"cache_level"}},
		{ID: "https", Matcher: "*example.com", Other: []string{"always_use_https"}},
	}
	fwd := redirect.Forwarding(live)

	d := diff.Sequence(redirect.ToRules(fwd), []redirect.Rule{a})
	_, err := BuildRedirectPlan(d, RedirectPlanInput{
		Current:   fwd,
		Desired:   []redirect.Rule{a},
		Quota:     2,
		LiveCount: len(live),
	})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestCount(t *testing.T) {
	ops := []Operation{{Kind: Create}, {Kind: Create}, {Kind: Delete}}
	assert.Equal(t, map[OpKind]int{Create: 2, Delete: 1}, Count(ops))
	assert.Equal(t, "2 create, 1 delete", summarize(ops))
}
