package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyDeterministic(t *testing.T) {
	r1 := &Request[int]{Method: MethodGet, Path: "/u/1", Query: map[string]string{"a": "1", "b": "2"}}
	r2 := &Request[int]{Method: MethodGet, Path: "/u/1", Query: map[string]string{"b": "2", "a": "1"}}
	assert.Equal(t, r1.Key(), r2.Key(), "query parameter order must not affect the key")
}

func TestKeyDiffersByMethod(t *testing.T) {
	get := &Request[int]{Method: MethodGet, Path: "/u/1"}
	post := &Request[int]{Method: MethodPost, Path: "/u/1"}
	assert.NotEqual(t, get.Key(), post.Key())
}

func TestKeyDiffersByBody(t *testing.T) {
	a := &Request[int]{Method: MethodPost, Path: "/orders", Body: []byte(`{"id":1}`)}
	b := &Request[int]{Method: MethodPost, Path: "/orders", Body: []byte(`{"id":2}`)}
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestCacheKeyOverride(t *testing.T) {
	r := &Request[int]{Method: MethodGet, Path: "/u/1", Cache: CachePolicy{Key: "custom"}}
	assert.Equal(t, "custom", r.CacheKey())
	assert.NotEqual(t, r.CacheKey(), r.Key())
}

func TestMethodIdempotent(t *testing.T) {
	assert.True(t, MethodGet.Idempotent())
	assert.True(t, MethodPut.Idempotent())
	assert.True(t, MethodDelete.Idempotent())
	assert.False(t, MethodPost.Idempotent())
	assert.False(t, MethodPatch.Idempotent())
}

func TestPriorityOrdinal(t *testing.T) {
	assert.Less(t, Critical.Ordinal(), High.Ordinal())
	assert.Less(t, High.Ordinal(), Normal.Ordinal())
	assert.Less(t, Normal.Ordinal(), Low.Ordinal())
}
