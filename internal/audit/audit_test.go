package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	assert.Nil(t, d)
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	assert.Zero(t, d.Dropped())
}

func TestDispatcherFanOutPreservesOrder(t *testing.T) {
	a := NewChannelSink(16)
	b := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, a, nil, b)

	for _, typ := range []string{"one", "two", "three"} {
		d.Emit(context.Background(), Event{EventType: typ})
	}
	d.Close()

	for _, sink := range []*ChannelSink{a, b} {
		var got []string
		for i := 0; i < 3; i++ {
			got = append(got, (<-sink.Events()).EventType)
		}
		assert.Equal(t, []string{"one", "two", "three"}, got)
	}
	assert.Equal(t, uint64(3), d.Delivered())
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event is held by the worker, one sits in the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
	}
	require.Eventually(t, func() bool { return d.Dropped() >= 8 }, time.Second, time.Millisecond)

	close(sink.release)
	d.Close()
	assert.Equal(t, uint64(10), d.Dropped()+d.Delivered())
}

func TestDispatcherBlockingHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.release)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "held"})
	require.Eventually(t, func() bool { return len(d.ch) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Event{EventType: "buffered"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "late"})
	assert.Equal(t, uint64(1), d.Dropped())
}

func TestEmitAfterCloseIsIgnored(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "late"})
	assert.Zero(t, d.Delivered())
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid_credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var e Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, "login_failure", e.EventType)
	assert.Equal(t, "invalid_credentials", e.Error)
	assert.NotContains(t, lines[0], "actor_id")
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "mfa_enabled", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{
		EventType: "admin_toggle",
		UserID:    "u2",
		ActorID:   "admin",
		Error:     "admin_mfa_required",
		Metadata:  map[string]string{"gate": "mfa"},
	})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)

	fields := entries[1].ContextMap()
	assert.Equal(t, "admin", fields["actor_id"])
	assert.Equal(t, "mfa", fields["meta.gate"])
}
