package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"circulation/internal/http/handlers"
	"circulation/internal/repos"
)

// Seeded passwords are stored as bcrypt hashes, never plaintext.
func TestPasswordsSeededAreHashed(t *testing.T) {
	h := newHarness(t, testLimits())
	var hashes []string
	require.NoError(t, h.db.Select(&hashes, `SELECT password_hash FROM users`))
	require.NotEmpty(t, hashes)
	for _, hash := range hashes {
		assert.NotContains(t, hash, repos.DemoPassword)
		assert.True(t, strings.HasPrefix(hash, "$2"), "unexpected hash format: %s", hash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(repos.DemoPassword)))
	}
}

func TestLoginSuccessFailAndThrottle(t *testing.T) {
	lim := testLimits()
	lim.LoginAttempts = 2
	h := newHarness(t, lim)

	bad := h.do("POST", "/api/v1/login", map[string]string{"email": "alice@library.test", "password": "Wrong-pass1"}, "")
	assert.Equal(t, http.StatusUnauthorized, bad.Status)
	assert.Equal(t, "invalid email or password", bad.Error)

	good := h.do("POST", "/api/v1/login", map[string]string{"email": "alice@library.test", "password": repos.DemoPassword}, "")
	require.Equal(t, http.StatusOK, good.Status, good.Raw)
	assert.Equal(t, "u-alice", good.data()["id"])
	assert.Equal(t, "READER", good.data()["role"])

	third := h.do("POST", "/api/v1/login", map[string]string{"email": "alice@library.test", "password": repos.DemoPassword}, "")
	assert.Equal(t, http.StatusTooManyRequests, third.Status)
}

func TestLoginRejectsDisabledReader(t *testing.T) {
	h := newHarness(t, testLimits())
	r := h.do("POST", "/api/v1/login", map[string]string{"email": "dave@library.test", "password": repos.DemoPassword}, "")
	assert.Equal(t, http.StatusUnauthorized, r.Status)
}

func TestLogoutDropsSession(t *testing.T) {
	h := newHarness(t, testLimits())
	sid := h.login("bob@library.test")

	r := h.do("GET", "/api/v1/borrow/current", nil, sid)
	require.Equal(t, http.StatusOK, r.Status, r.Raw)

	r = h.do("POST", "/api/v1/logout", nil, sid)
	require.Equal(t, http.StatusOK, r.Status, r.Raw)

	r = h.do("GET", "/api/v1/borrow/current", nil, sid)
	assert.Equal(t, http.StatusUnauthorized, r.Status)
}

func TestMutationsNeedCSRFToken(t *testing.T) {
	h := newHarness(t, handlers.DefaultLimits)
	h.csrf = ""
	r := h.do("POST", "/api/v1/login", map[string]string{"email": "alice@library.test", "password": repos.DemoPassword}, "")
	assert.Equal(t, http.StatusForbidden, r.Status)
}
