package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"workphone-gateway/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestHub(t *testing.T, clock *fakeClock, opts Options) *Hub {
	t.Helper()
	if clock != nil {
		opts.Clock = clock.Now
	}
	return NewHub(opts, NewMetrics(prometheus.NewRegistry()), zap.NewNop())
}

func newTestSession(h *Hub, deviceID, userID string) *Session {
	return newSession(nil, h, &Identity{DeviceID: deviceID, UserID: userID, DisplayName: userID}, h.now())
}

// nextFrame pops the next queued frame of s without a running writePump.
func nextFrame(t *testing.T, s *Session) *Frame {
	t.Helper()
	select {
	case msg := <-s.send:
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			t.Fatalf("queued frame is not JSON: %v", err)
		}
		return &f
	default:
		t.Fatalf("no frame queued for %s", s.DeviceID)
		return nil
	}
}

type recordedUpdate struct {
	deviceID string
	callID   string
	update domain.CallUpdate
}

type mockRecorder struct {
	mu      sync.Mutex
	updates []recordedUpdate
	err     error
}

func (m *mockRecorder) RecordCallUpdate(_ context.Context, deviceID, callID string, update domain.CallUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, recordedUpdate{deviceID: deviceID, callID: callID, update: update})
	return m.err
}

type presenceRecord struct {
	online   bool
	deviceID string
}

type recordingListener struct {
	events chan presenceRecord
}

func newRecordingListener() *recordingListener {
	return &recordingListener{events: make(chan presenceRecord, 32)}
}

func (l *recordingListener) DeviceOnline(_ context.Context, info SessionInfo) {
	l.events <- presenceRecord{online: true, deviceID: info.DeviceID}
}

func (l *recordingListener) DeviceOffline(_ context.Context, info SessionInfo) {
	l.events <- presenceRecord{online: false, deviceID: info.DeviceID}
}

func (l *recordingListener) expect(t *testing.T, online bool, deviceID string) {
	t.Helper()
	select {
	case ev := <-l.events:
		if ev.online != online || ev.deviceID != deviceID {
			t.Fatalf("expected presence (online=%v, %s), got (online=%v, %s)", online, deviceID, ev.online, ev.deviceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for presence (online=%v, %s)", online, deviceID)
	}
}

func (l *recordingListener) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-l.events:
		t.Fatalf("unexpected presence event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// runHub starts h.Run and returns a function that stops it and waits.
func runHub(h *Hub) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}
