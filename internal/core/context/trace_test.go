package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceContext(t *testing.T) {
	t.Run("preserves supplied ids", func(t *testing.T) {
		trace := NewTraceContext("trace-123", "req-456")
		assert.Equal(t, "trace-123", trace.TraceID)
		assert.Equal(t, "req-456", trace.RequestID)
		assert.Len(t, trace.SpanID, 16)
	})

	t.Run("generates missing ids", func(t *testing.T) {
		trace := NewTraceContext("", "")
		assert.NotEmpty(t, trace.TraceID)
		assert.NotEmpty(t, trace.RequestID)
		assert.NotEqual(t, trace.TraceID, trace.RequestID)
	})
}

func TestTraceRoundTrip(t *testing.T) {
	trace := NewTraceContext("trace-123", "req-456")
	ctx := WithTrace(context.Background(), trace)

	got := GetTrace(ctx)
	require.NotNil(t, got)
	assert.Equal(t, trace, got)

	assert.Nil(t, GetTrace(context.Background()))
}
