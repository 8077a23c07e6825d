package config

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetDefaults_FillsUnsetKeys(t *testing.T) {
	dst := Values{"host": "explicit:1", "quiet": nil}
	got := SetDefaults(dst, Values{"host": "default:2", "quiet": true, "capture": "c:3"})

	assert.Equal(t, Values{"host": "explicit:1", "quiet": true, "capture": "c:3"}, got)
}

func TestSetDefaults_FalseIsExplicit(t *testing.T) {
	got := SetDefaults(Values{"verbose": false}, Values{"verbose": true})
	assert.Equal(t, false, got["verbose"])
}

func TestSetDefaults_NilDestination(t *testing.T) {
	got := SetDefaults(nil, Values{"a": 1})
	assert.Equal(t, Values{"a": 1}, got)
}

func TestSetDefaults_NotRecursive(t *testing.T) {
	dst := Values{"nested": map[string]any{"a": 1}}
	got := SetDefaults(dst, Values{"nested": map[string]any{"a": 2, "b": 3}})
	assert.Equal(t, map[string]any{"a": 1}, got["nested"])
}

// Explicit keys survive unchanged and defaults-only keys appear, for
// arbitrary key sets.
func TestSetDefaults_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		explicit := Values{}
		defaults := Values{}
		for k := 0; k < rng.Intn(12); k++ {
			explicit[fmt.Sprintf("k%d", rng.Intn(16))] = fmt.Sprintf("explicit-%d", k)
		}
		for k := 0; k < rng.Intn(12); k++ {
			defaults[fmt.Sprintf("k%d", rng.Intn(16))] = fmt.Sprintf("default-%d", k)
		}
		before := explicit.Clone()

		merged := SetDefaults(explicit, defaults)

		for k, v := range before {
			assert.Equal(t, v, merged[k], "explicit key %s changed", k)
		}
		for k, v := range defaults {
			if _, ok := before[k]; !ok {
				assert.Equal(t, v, merged[k], "default key %s missing", k)
			}
		}
		assert.LessOrEqual(t, len(merged), len(before)+len(defaults))
	}
}

func TestValues_Set(t *testing.T) {
	v := Values{"a": 1, "b": nil}
	assert.True(t, v.Set("a"))
	assert.False(t, v.Set("b"))
	assert.False(t, v.Set("c"))
}

// An explicit nil is indistinguishable from an absent key: decoded YAML and
// CUE yield nil for `key: null`, and Options has no nullable fields.
func TestSetDefaults_NilIsUnset(t *testing.T) {
	got := SetDefaults(Values{"host": nil}, Values{"host": "localhost:9200"})
	assert.Equal(t, "localhost:9200", got["host"])
}
