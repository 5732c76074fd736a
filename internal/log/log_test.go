package log_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	applog "circulation/internal/log"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := applog.SetLogger(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestAlertCarriesFlagAndError(t *testing.T) {
	logs := observe(t)

	applog.Alert(nil, "borrow.policy.missing", errors.New("no reader type"), map[string]any{"reader_id": "u-x"})

	entries := logs.FilterMessage("borrow.policy.missing").All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, zapcore.ErrorLevel, e.Level)
	ctx := e.ContextMap()
	assert.Equal(t, "alert", ctx["kind"])
	assert.Equal(t, "no reader type", ctx["error"])
	fields, ok := ctx["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, fields["alert"])
	assert.Equal(t, "u-x", fields["reader_id"])
}

func TestAlertLeavesCallerFieldsAlone(t *testing.T) {
	logs := observe(t)

	shared := map[string]any{"book_id": "bk-1"}
	applog.Alert(nil, "return.ledger_drift", nil, shared)
	applog.Info(nil, "return", shared)

	assert.Equal(t, map[string]any{"book_id": "bk-1"}, shared)
	info := logs.FilterMessage("return").All()
	require.Len(t, info, 1)
	_, flagged := info[0].ContextMap()["fields"].(map[string]any)["alert"]
	assert.False(t, flagged)

	applog.Alert(nil, "no.fields", nil, nil)
	require.Len(t, logs.FilterMessage("no.fields").All(), 1)
}

func TestRequestFieldsAttached(t *testing.T) {
	logs := observe(t)

	app := fiber.New()
	app.Get("/ping", func(c *fiber.Ctx) error {
		c.Locals("requestid", "rid-1")
		c.Locals("user_id", "u-alice")
		applog.Audit(c, "ping", nil)
		return c.SendStatus(fiber.StatusNoContent)
	})
	_, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)

	entries := logs.FilterMessage("ping").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "audit", ctx["kind"])
	assert.Equal(t, "rid-1", ctx["req_id"])
	assert.Equal(t, "u-alice", ctx["user_id"])
	assert.Equal(t, "/ping", ctx["path"])
	assert.Equal(t, "GET", ctx["method"])
}

func TestSecurityIsWarnLevel(t *testing.T) {
	logs := observe(t)
	applog.Security(nil, "access.denied.admin", map[string]any{"sid": "x"})
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestNewBuildsLogger(t *testing.T) {
	l, err := applog.New("circulation", "debug", "")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = applog.New("circulation", "error", "")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
}
