package handlers_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"circulation/internal/events"
	"circulation/internal/http/handlers"
	applog "circulation/internal/log"
	"circulation/internal/metrics"
	"circulation/internal/repos"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type harness struct {
	t    *testing.T
	app  *fiber.App
	db   *sqlx.DB
	csrf string
}

type reply struct {
	Status int
	OK     bool           `json:"ok"`
	Data   any            `json:"data"`
	Error  string         `json:"error"`
	Raw    string         `json:"-"`
	Header http.Header    `json:"-"`
	Cookie []*http.Cookie `json:"-"`
}

func (r reply) data() map[string]any {
	m, _ := r.Data.(map[string]any)
	return m
}

func testLimits() handlers.Limits {
	return handlers.Limits{RequestsPerMinute: 1000, LoginAttempts: 100}
}

func newHarness(t *testing.T, lim handlers.Limits) *harness {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repos.SeedDemo(db))

	d := handlers.NewDeps(db, events.Nop{}, metrics.New(prometheus.NewRegistry()))
	h := &harness{t: t, app: handlers.NewApp(d, lim), db: db}

	r := h.do("GET", "/api/v1/csrf", nil, "")
	for _, c := range r.Cookie {
		if c.Name == "csrf_" {
			h.csrf = c.Value
		}
	}
	require.NotEmpty(t, h.csrf, "csrf cookie missing")
	return h
}

func (h *harness) do(method, path string, body any, sid string) reply {
	h.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.csrf != "" {
		req.Header.Set("X-CSRF-Token", h.csrf)
		req.AddCookie(&http.Cookie{Name: "csrf_", Value: h.csrf})
	}
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	out := reply{Status: resp.StatusCode, Raw: string(raw), Header: resp.Header, Cookie: resp.Cookies()}
	_ = json.Unmarshal(raw, &out)
	return out
}

// login returns the sid of a fresh session for email.
func (h *harness) login(email string) string {
	h.t.Helper()
	r := h.do("POST", "/api/v1/login", map[string]string{"email": email, "password": repos.DemoPassword}, "")
	require.Equal(h.t, http.StatusOK, r.Status, r.Raw)
	for _, c := range r.Cookie {
		if c.Name == "sid" {
			return c.Value
		}
	}
	h.t.Fatal("sid cookie missing after login")
	return ""
}

func (h *harness) available(bookID string) int {
	h.t.Helper()
	var n int
	require.NoError(h.t, h.db.Get(&n, `SELECT available_qty FROM books WHERE id = ?`, bookID))
	return n
}

// observeLogs swaps the process logger for an in-memory one for the rest of the test.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(applog.SetLogger(zap.New(core)))
	return logs
}

func fieldsOf(e observer.LoggedEntry) map[string]any {
	m, _ := e.ContextMap()["fields"].(map[string]any)
	return m
}
