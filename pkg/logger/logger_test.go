package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON})

	log.With(Component("matcher")).Info("proposal created",
		ProposalID("p-1"), Int("assigned", 3), Latency(1500*time.Millisecond))
	log.Debug("dropped")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "proposal created", entry["message"])
	assert.Equal(t, "matcher", entry["component"])
	assert.Equal(t, "p-1", entry["proposal_id"])
	assert.Equal(t, float64(3), entry["assigned"])
	assert.Contains(t, entry, "timestamp")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestContextPropagation(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := FromZap(zap.New(core))

	ctx := WithContext(context.Background(), log.WithRequestID("req-9"))
	FromContext(ctx).Warn("pair failed", StudentID("s-1"), TeacherID("t-1"), Err(errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "pair failed", e.Message)
	fields := e.ContextMap()
	assert.Equal(t, "req-9", fields[RequestIDKey])
	assert.Equal(t, "s-1", fields["student_id"])
	assert.Equal(t, "boom", fields["error"])
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	assert.NotPanics(t, func() {
		FromContext(context.Background()).Info("nothing")
	})
}
