// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatehouse", "test", "json", &buf)

	logger.Info("hello", "key", "value")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "value", record["key"])
	assert.Equal(t, "gatehouse", record["service"])
	assert.Equal(t, "test", record["version"])
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatehouse", "test", "text", &buf)

	logger.Info("hello")

	out := buf.String()
	assert.Contains(t, out, "msg=hello")
	assert.Contains(t, out, "service=gatehouse")
}

func TestSetup_UnknownFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatehouse", "test", "", &buf)

	logger.Info("hello")
	assert.True(t, json.Valid(buf.Bytes()))
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatehouse", "test", "json", &buf)

	traceID := trace.TraceID{0x01, 0x02, 0x03, 0x04}
	spanID := trace.SpanID{0x0a, 0x0b}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, traceID.String(), record["trace_id"])
	assert.Equal(t, spanID.String(), record["span_id"])
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatehouse", "test", "json", &buf)

	logger.With("component", "api").WithGroup("req").Info("grouped", "method", "GET")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "api", record["component"])
	group, ok := record["req"].(map[string]any)
	require.True(t, ok, "expected req group")
	assert.Equal(t, "GET", group["method"])
}

func TestHandler_DebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("gatehouse", "test", "json", &buf)

	logger.Debug("debugging")
	assert.NotEmpty(t, buf.String(), "debug level should be enabled")
}
