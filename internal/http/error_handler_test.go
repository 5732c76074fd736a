package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Storage failures surface as a generic message; driver text never reaches the client.
func TestInternalErrorsDoNotLeak(t *testing.T) {
	h := newHarness(t, testLimits())
	alice := h.login("alice@library.test")
	logs := observeLogs(t)

	_, err := h.db.Exec(`DROP TABLE borrow_records`)
	require.NoError(t, err)

	r := h.do("GET", "/api/v1/borrow/current", nil, alice)
	assert.Equal(t, http.StatusInternalServerError, r.Status)
	assert.Equal(t, "something went wrong, please try again", r.Error)
	assert.False(t, strings.Contains(r.Raw, "borrow_records"), "body leaked: %s", r.Raw)
	assert.Len(t, logs.FilterMessage("borrow.current.fail").All(), 1)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	h := newHarness(t, testLimits())
	r := h.do("GET", "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, r.Status)
	assert.Equal(t, "not found", r.Error)
}

func TestBodyNotJSON(t *testing.T) {
	h := newHarness(t, testLimits())
	alice := h.login("alice@library.test")
	r := h.do("POST", "/api/v1/borrow/borrow", "just a string", alice)
	assert.Equal(t, http.StatusUnprocessableEntity, r.Status)
	assert.Equal(t, 1, h.available("bk-sicp"))
}
