package log

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// New builds the process logger: JSON lines to stdout, plus logFile when set.
func New(serviceName, logLevel, logFile string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	level := zapcore.InfoLevel
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "message"
	config.InitialFields = map[string]interface{}{"service": serviceName}
	if logFile != "" {
		config.OutputPaths = append(config.OutputPaths, logFile)
	}

	return config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// SetLogger replaces the process logger and returns a func restoring the previous one.
func SetLogger(l *zap.Logger) (restore func()) {
	mu.Lock()
	prev := base
	base = l
	mu.Unlock()
	return func() { SetLogger(prev) }
}

// L returns the process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func write(level zapcore.Level, kind string, c *fiber.Ctx, action string, err error, fields map[string]any) {
	fs := []zap.Field{zap.String("kind", kind), zap.String("action", action)}
	if c != nil {
		fs = append(fs,
			zap.String("ip", c.IP()),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
		)
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			fs = append(fs, zap.String("req_id", rid))
		}
		if uid, ok := c.Locals("user_id").(string); ok && uid != "" {
			fs = append(fs, zap.String("user_id", uid))
		}
	}
	if err != nil {
		fs = append(fs, zap.Error(err))
	}
	if len(fields) > 0 {
		fs = append(fs, zap.Any("fields", fields))
	}
	if ce := L().Check(level, action); ce != nil {
		ce.Write(fs...)
	}
}

func Info(c *fiber.Ctx, action string, fields map[string]any) {
	write(zapcore.InfoLevel, "info", c, action, nil, fields)
}

func Audit(c *fiber.Ctx, action string, fields map[string]any) {
	write(zapcore.InfoLevel, "audit", c, action, nil, fields)
}

func Security(c *fiber.Ctx, action string, fields map[string]any) {
	write(zapcore.WarnLevel, "security", c, action, nil, fields)
}

func Error(c *fiber.Ctx, action string, err error, fields map[string]any) {
	write(zapcore.ErrorLevel, "error", c, action, err, fields)
}

// Alert marks data-integrity failures (corrupt reference data, storage bugs)
// so they can be routed apart from ordinary rejections.
func Alert(c *fiber.Ctx, action string, err error, fields map[string]any) {
	tagged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		tagged[k] = v
	}
	tagged["alert"] = true
	write(zapcore.ErrorLevel, "alert", c, action, err, tagged)
}
