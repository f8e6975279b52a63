package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/menta2k/image-ingest/pkg/types"
)

func TestLogNotifierLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	n.Report("saved", types.SeveritySuccess)
	n.Report("slow", types.SeverityWarning)
	n.Report("failed", types.SeverityError)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, "failed", entries[2].Message)
	assert.Equal(t, "error", entries[2].ContextMap()["severity"])
}

func TestLogNotifierNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogNotifier(nil).Report("x", types.SeverityInfo)
	})
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)

	r.Report("a", types.SeverityError)
	r.Report("b", types.SeveritySuccess)

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, Notification{Message: "b", Severity: types.SeveritySuccess}, last)
	assert.Len(t, r.All(), 2)
	assert.Equal(t, 1, r.Count(types.SeverityError))
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	var seen []string
	m := Multi{&a, nil, &b, Func(func(msg string, _ types.Severity) { seen = append(seen, msg) })}

	m.Report("hello", types.SeverityInfo)

	assert.Len(t, a.All(), 1)
	assert.Len(t, b.All(), 1)
	assert.Equal(t, []string{"hello"}, seen)
}
