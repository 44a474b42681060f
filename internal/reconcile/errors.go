package reconcile

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/state"
)

type ErrorKind string

const (
	QuotaExceeded    ErrorKind = "quota exceeded"
	PermissionDenied ErrorKind = "permission denied"
	ValidationError  ErrorKind = "validation error"
	TransportError   ErrorKind = "transport error"
	NotFound         ErrorKind = "not found"
	NoMatchingConfig ErrorKind = "no matching config"
	// InvalidConfig is a desired-state file that exists but cannot be used.
	InvalidConfig ErrorKind = "invalid config"
)

// Capabilities named in permission errors.
const (
	CapabilitySettingsRead  = "#zone_settings.read"
	CapabilitySettingsEdit  = "#zone_settings.edit"
	CapabilityPageRulesRead = "#zone.read"
	CapabilityPageRulesEdit = "#zone.edit"
)

// Kind sentinels, matched with errors.Is against any *Error.
var (
	ErrQuotaExceeded    = errors.New(string(QuotaExceeded))
	ErrPermissionDenied = errors.New(string(PermissionDenied))
	ErrValidation       = errors.New(string(ValidationError))
	ErrTransport        = errors.New(string(TransportError))
	ErrNotFound         = errors.New(string(NotFound))
	ErrNoMatchingConfig = errors.New(string(NoMatchingConfig))
	ErrInvalidConfig    = errors.New(string(InvalidConfig))
)

var sentinels = map[ErrorKind]error{
	QuotaExceeded:    ErrQuotaExceeded,
	PermissionDenied: ErrPermissionDenied,
	ValidationError:  ErrValidation,
	TransportError:   ErrTransport,
	NotFound:         ErrNotFound,
	NoMatchingConfig: ErrNoMatchingConfig,
	InvalidConfig:    ErrInvalidConfig,
}

// Error is a classified reconciliation failure.
type Error struct {
	Kind       ErrorKind
	Zone       string
	Resource   string
	Capability string
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Zone != "" {
		fmt.Fprintf(&b, ": zone %s", e.Zone)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ": %s", e.Resource)
	}
	if e.Capability != "" {
		fmt.Fprintf(&b, ": token lacks %s", e.Capability)
	}
	switch {
	case e.Detail != "":
		fmt.Fprintf(&b, ": %s", e.Detail)
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// Classify turns a provider error into an *Error. capability is reported if
// the provider refused the call with 403. Already classified errors are
// returned unchanged.
func Classify(err error, zone, resource, capability string) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	e := &Error{Zone: zone, Resource: resource, Err: err}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		e.Detail = apiErr.Detail
	}

	switch provider.StatusCode(err) {
	case http.StatusForbidden:
		e.Kind = PermissionDenied
		e.Capability = capability
	case http.StatusBadRequest:
		e.Kind = ValidationError
	case http.StatusNotFound:
		e.Kind = NotFound
	default:
		e.Kind = TransportError
		if errors.Is(err, state.ErrZoneNotCached) {
			e.Kind = NotFound
		}
	}
	return e
}
