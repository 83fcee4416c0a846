package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)
	return &Logger{
		Logger: base,
		moduleFunc: func(names []string) *zap.Logger {
			return base.Named(names[len(names)-1])
		},
	}, logs
}

func TestWithFieldsReachModules(t *testing.T) {
	logger, logs := newObserved()

	logger.With(String("instance", "gw-1")).Module("Session").Info("Room created")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "Session", entries[0].LoggerName)
	assert.Equal(t, "gw-1", entries[0].ContextMap()["instance"])
}

func TestWithDoesNotLeakToParent(t *testing.T) {
	logger, logs := newObserved()

	_ = logger.With(String("connectionId", "c1"))
	logger.Module("Relay").Info("Relayed")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), "connectionId")
}

func TestNopModule(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().With(Bool("ok", true)).Module("Any").Info("ignored")
	})
}

func TestNewFromZapJoinsModuleNames(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := NewFromZap(zap.New(core))

	logger.Module("Signal").Module("WSRPC").Info("ready")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "Signal.WSRPC", entries[0].LoggerName)
}
