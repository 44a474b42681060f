package reconcile

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanofslack/cf-zone-sync/internal/metrics"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
)

var testZone = provider.Zone{ID: "zone-1", Name: "example.com", PlanName: "Free Website", PageRuleQuota: 3}

func TestExecuteRedirectPlanIsolatesFailures(t *testing.T) {
	mock := &MockProvider{errs: map[string]error{
		"UpdatePageRule:id-b": &provider.APIError{StatusCode: http.StatusForbidden, Detail: "Authentication error"},
	}}
	x := NewExecutor(mock, metrics.New(false), 2)

	payload := forwardRule("", "*example.com/x", "https://x.example.com", 301)
	ops := []Operation{
		{TargetKey: "new-000000000001", Kind: Create, Payload: &payload},
		{TargetKey: "id-b", Kind: Update, Payload: &payload},
		{TargetKey: "id-c", Kind: Delete},
	}

	results := x.ExecuteRedirectPlan(context.Background(), testZone, ops)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	require.NotNil(t, results[0].Rule)
	assert.Equal(t, "created-1", results[0].Rule.ID)

	assert.False(t, results[1].Success)
	assert.Equal(t, "id-b", results[1].TargetKey)
	assert.ErrorIs(t, results[1].Err, ErrPermissionDenied)
	var e *Error
	require.ErrorAs(t, results[1].Err, &e)
	assert.Equal(t, CapabilityPageRulesEdit, e.Capability)
	assert.Equal(t, "example.com", e.Zone)

	assert.True(t, results[2].Success)
	assert.Nil(t, results[2].Rule)

	assert.ElementsMatch(t, []string{"CreatePageRule", "UpdatePageRule:id-b", "DeletePageRule:id-c"}, mock.Calls())
}

func TestExecuteRedirectPlanEmpty(t *testing.T) {
	mock := &MockProvider{}
	results := NewExecutor(mock, metrics.New(false), 0).ExecuteRedirectPlan(context.Background(), testZone, nil)
	assert.Empty(t, results)
	assert.Empty(t, mock.Calls())
}

func TestExecuteRedirectPlanMissingPayload(t *testing.T) {
	mock := &MockProvider{}
	results := NewExecutor(mock, metrics.New(false), 1).ExecuteRedirectPlan(context.Background(), testZone, []Operation{
		{TargetKey: "id-a", Kind: Update},
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Error(t, results[0].Err)
	assert.Empty(t, mock.Calls())
}

func TestExecuteSettings(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "success"},
		{
			name:     "forbidden",
			err:      &provider.APIError{StatusCode: http.StatusForbidden},
			sentinel: ErrPermissionDenied,
		},
		{
			name:     "invalid value",
			err:      &provider.APIError{StatusCode: http.StatusBadRequest, Detail: "Invalid value for zone setting ssl"},
			sentinel: ErrValidation,
		},
		{
			name:     "network",
			err:      errors.New("dial tcp: i/o timeout"),
			sentinel: ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockProvider{errs: map[string]error{}}
			if tt.err != nil {
				mock.errs["UpdateSettings"] = tt.err
			}
			x := NewExecutor(mock, metrics.New(false), 1)

			err := x.ExecuteSettings(context.Background(), testZone, []provider.Setting{{ID: "ssl", Value: "full"}})
			assert.Equal(t, []string{"UpdateSettings"}, mock.Calls())
			if tt.sentinel == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}
