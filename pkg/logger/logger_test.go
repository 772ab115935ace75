package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogger_Info_WithTraceID(t *testing.T) {
	buffer := &bytes.Buffer{}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(buffer),
		zap.InfoLevel,
	)
	Log = zap.New(core)

	traceVal := "test-trace-12345"
	ctx := context.WithValue(context.Background(), TraceIdKey, traceVal)

	Info(ctx, "payment matched", zap.Uint64("payment_id", 42), zap.String("tx_hash", "0xabc"))

	var logEntry map[string]interface{}
	err := json.Unmarshal(buffer.Bytes(), &logEntry)
	assert.NoError(t, err)

	assert.Equal(t, "info", logEntry["level"])
	assert.Equal(t, "payment matched", logEntry["msg"])
	assert.Equal(t, float64(42), logEntry["payment_id"])
	assert.Equal(t, "0xabc", logEntry["tx_hash"])
	assert.Equal(t, traceVal, logEntry["trace_id"], "trace id should be injected automatically")
}

func TestLogger_Error_NoTraceID(t *testing.T) {
	buffer := &bytes.Buffer{}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(buffer),
		zap.InfoLevel,
	)
	Log = zap.New(core)

	Error(context.Background(), "mysql connection failed", zap.String("dsn", "wopay:***@tcp(db:3306)/wopay"))

	var logEntry map[string]interface{}
	_ = json.Unmarshal(buffer.Bytes(), &logEntry)

	_, exists := logEntry["trace_id"]
	assert.False(t, exists, "a context with no trace id should not emit a trace_id field")
	assert.Equal(t, "error", logEntry["level"])
}
