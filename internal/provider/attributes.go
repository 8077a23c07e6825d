package provider

import (
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Attributes is an immutable key/value set describing a provider, e.g. the
// platform or browser family of its workers.
//
// Keys are NFC-normalized so that visually identical keys sent by different
// sources compare equal.
type Attributes struct {
	values map[string]any
}

func freezeAttributes(in map[string]any) Attributes {
	values := make(map[string]any, len(in))
	for k, v := range in {
		values[norm.NFC.String(k)] = v
	}
	return Attributes{values: values}
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (any, bool) {
	v, ok := a.values[norm.NFC.String(key)]
	return v, ok
}

// Len returns the number of attributes.
func (a Attributes) Len() int {
	return len(a.values)
}

// Keys returns the attribute keys in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a.values))
	for k := range a.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the attributes. Mutating it does not affect a.
func (a Attributes) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}
