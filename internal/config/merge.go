package config

// Values is a flat record of configuration options keyed by option name.
type Values map[string]any

// SetDefaults fills every key of defaults that is unset in dst. A key is
// unset when it is absent or holds nil. Explicit values in dst are never
// overwritten, and nested maps are not merged: the copy is one level deep.
//
// dst is modified in place and returned; a nil dst yields a new map.
func SetDefaults(dst, defaults Values) Values {
	if dst == nil {
		dst = make(Values, len(defaults))
	}
	for key, value := range defaults {
		if current, ok := dst[key]; !ok || current == nil {
			dst[key] = value
		}
	}
	return dst
}

// Clone returns a shallow copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Set reports whether key holds a non-nil value.
func (v Values) Set(key string) bool {
	val, ok := v[key]
	return ok && val != nil
}
