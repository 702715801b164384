package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type blockingSink struct {
	release chan struct{}
	got     chan Event
}

func (s *blockingSink) Emit(ctx context.Context, event Event) {
	<-s.release
	s.got <- event
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected disabled dispatcher to be nil")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{ID: NewEventID(), EventType: "refresh_success"})
	}
	d.Close()

	if got := len(sink.Events()); got != 3 {
		t.Fatalf("expected 3 delivered events, got %d", got)
	}
	d.Emit(context.Background(), Event{EventType: "after_close"})
	if got := len(sink.Events()); got != 3 {
		t.Fatalf("expected emit after close to be ignored, got %d events", got)
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), got: make(chan Event, 16)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_invalid"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherLogsDropsSparsely(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &blockingSink{release: make(chan struct{}), got: make(chan Event, 16)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: zap.New(core)}, sink)

	for i := 0; i < 12; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_invalid"})
	}
	close(sink.release)
	d.Close()

	dropped := d.Dropped()
	if dropped < 9 {
		t.Fatalf("expected at least 9 drops, got %d", dropped)
	}
	warns := logs.FilterMessage("audit event dropped").Len()
	if warns < 3 || warns > 4 {
		t.Fatalf("expected one warning per power of two, got %d for %d drops", warns, dropped)
	}
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), got: make(chan Event, 16)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// one event held by the worker, one filling the buffer
	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})
	if d.Dropped() != 1 {
		t.Fatalf("expected the timed out emit to count as dropped, got %d", d.Dropped())
	}

	close(sink.release)
	d.Close()
	d.Close()
}

func TestEventIDsAreUniqueAndSortable(t *testing.T) {
	a := NewEventID()
	time.Sleep(1100 * time.Millisecond)
	b := NewEventID()
	if a == b {
		t.Fatal("expected unique IDs")
	}
	if strings.Compare(a, b) >= 0 {
		t.Fatalf("expected later ID to sort after earlier one: %s >= %s", a, b)
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{ID: "e1", EventType: "device_revoked", UserID: "u1", DeviceID: "d1", Success: true})
	sink.Emit(context.Background(), Event{ID: "e2", EventType: "refresh_reuse_detected"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.DeviceID != "d1" || decoded.EventType != "device_revoked" {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{ID: "e1", EventType: "login_success", Success: true, UserID: "u1"})
	sink.Emit(context.Background(), Event{ID: "e2", EventType: "refresh_reuse_detected", Error: "compromised", DeviceID: "d1"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].ContextMap()["device_id"] != "d1" {
		t.Fatalf("expected device_id field, got %v", entries[1].ContextMap())
	}
}
