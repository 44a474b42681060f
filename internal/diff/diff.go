// Package diff compares current and desired state structurally.
//
// Mapping is one directional: keys present only in current are never
// reported. Sequence is positional: element i of current is compared with
// element i of desired, and surplus trailing elements on either side show up
// as pure additions or removals. Sequence never matches by content, so a
// reordered list diffs as a series of changes.
package diff

import (
	"maps"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Entry is one detected discrepancy.
type Entry struct {
	Current    any
	Desired    any
	HasCurrent bool
	HasDesired bool
	// Children holds the changed sub-keys when both sides are mappings.
	Children map[string]Entry
}

func (e Entry) Added() bool   { return e.HasDesired && !e.HasCurrent }
func (e Entry) Removed() bool { return e.HasCurrent && !e.HasDesired }
func (e Entry) Changed() bool { return e.HasCurrent && e.HasDesired }

// Value is the desired value. Nested entries yield only the changed sub-keys.
func (e Entry) Value() any {
	if e.Children == nil {
		return e.Desired
	}
	out := make(map[string]any, len(e.Children))
	for k, child := range e.Children {
		out[k] = child.Value()
	}
	return out
}

// Mapping reports every key of desired that is missing from current or holds
// a different value.
func Mapping(current, desired map[string]any) map[string]Entry {
	result := make(map[string]Entry)
	for key, want := range desired {
		have, ok := current[key]
		if !ok {
			result[key] = Entry{Desired: want, HasDesired: true}
			continue
		}

		wantMap, wantIsMap := asMap(want)
		haveMap, haveIsMap := asMap(have)
		if wantIsMap && haveIsMap {
			if children := Mapping(haveMap, wantMap); len(children) > 0 {
				result[key] = Entry{
					Current:    have,
					Desired:    want,
					HasCurrent: true,
					HasDesired: true,
					Children:   children,
				}
			}
			continue
		}

		if !Equal(have, want) {
			result[key] = Entry{Current: have, Desired: want, HasCurrent: true, HasDesired: true}
		}
	}
	return result
}

// Sequence compares current and desired index by index.
func Sequence[T any](current, desired []T) map[int]Entry {
	result := make(map[int]Entry)
	n := max(len(current), len(desired))
	for i := 0; i < n; i++ {
		var e Entry
		if i < len(current) {
			e.Current, e.HasCurrent = current[i], true
		}
		if i < len(desired) {
			e.Desired, e.HasDesired = desired[i], true
		}
		if e.HasCurrent && e.HasDesired && Equal(e.Current, e.Desired) {
			continue
		}
		result[i] = e
	}
	return result
}

// Equal is the leaf comparison. Numbers compare by value whatever their Go
// type, since YAML decodes ints and JSON decodes float64.
func Equal(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b), cmpopts.EquateEmpty())
}

func SortedKeys(m map[string]Entry) []string {
	return slices.Sorted(maps.Keys(m))
}

func SortedIndices(m map[int]Entry) []int {
	return slices.Sorted(maps.Keys(m))
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalize(e)
		}
		return out
	}
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}
