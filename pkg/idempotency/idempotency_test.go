package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, Key(r))

	r.Header.Set(Header, "  abc  ")
	assert.Equal(t, "abc", Key(r))

	r.Header.Set(Header, strings.Repeat("x", 129))
	assert.Empty(t, Key(r))
}

func TestSet(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	Set(r, "")
	assert.Empty(t, r.Header.Get(Header))

	k := New()
	Set(r, k)
	assert.Equal(t, k, Key(r))
}
