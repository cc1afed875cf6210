package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestInitialize_SilentWithoutLevel(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	require.NoError(t, Initialize(""))
	t.Cleanup(func() { SetLogger(nil) })
	assert.False(t, GetLogger().Core().Enabled(zapcore.ErrorLevel))
}

func TestInitialize_EnvLevel(t *testing.T) {
	t.Setenv(LogLevelEnvVar, " WARN ")
	require.NoError(t, Initialize(""))
	t.Cleanup(func() { SetLogger(nil) })
	assert.True(t, GetLogger().Core().Enabled(zapcore.WarnLevel))
	assert.False(t, GetLogger().Core().Enabled(zapcore.InfoLevel))
}

func TestLogConnection(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)
	LogConnection("wss://192.168.1.20/fhapi", "resource_bound")

	entries := logs.FilterMessage("Session resource bound").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "resource_bound", entries[0].ContextMap()["event"])
}

func TestLogStanza_Truncates(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	LogStanza("peer", "RECV", []byte(strings.Repeat("x", maxPayloadLog+10)))

	entries := logs.FilterMessage("XMPP RECV").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, int64(maxPayloadLog+10), ctx["bytes"])
	assert.True(t, strings.HasSuffix(ctx["stanza"].(string), "..."))
}

func TestLogStanza_SkippedAboveDebug(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)
	LogStanza("peer", "SEND", []byte("<presence/>"))
	assert.Zero(t, logs.Len())
}

func TestLogRawBytes(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	LogRawBytes("Undecodable stanza", []byte{'<', 0x00, 'a', 0xff})

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "3c0061ff", ctx["hex"])
	assert.Equal(t, "<.a.", ctx["printable"])
}
