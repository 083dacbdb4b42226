package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithZap(zap.New(core))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithJobID(ctx, "job-1")
	ctx = WithWorkerID(ctx, 3)
	l.Infof(ctx, "[Test] hello %s", "world")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "[Test] hello world", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "job-1", fields["job_id"])
	assert.EqualValues(t, 3, fields["worker_id"])
	assert.NotContains(t, fields, "member_id")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
	assert.Equal(t, "abc", RequestID(WithRequestID(context.Background(), "abc")))
}
