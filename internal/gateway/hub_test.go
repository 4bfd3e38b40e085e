package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"workphone-gateway/internal/domain"
)

func TestHub_SweepEvictsSilentSessions(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(t, clock, Options{HeartbeatTimeout: 90 * time.Second, SweepInterval: 30 * time.Second})

	quiet := newTestSession(h, "d1", "u1")
	chatty := newTestSession(h, "d2", "u1")
	h.install(quiet)
	h.install(chatty)

	clock.Advance(60 * time.Second)
	h.route(chatty, []byte(`{"type":"heartbeat"}`))

	clock.Advance(30 * time.Second)
	if n := h.sweep(clock.Now()); n != 0 {
		t.Fatalf("session idle exactly the timeout must survive, evicted %d", n)
	}

	clock.Advance(time.Second)
	if n := h.sweep(clock.Now()); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}

	if h.IsDeviceOnline("d1") {
		t.Error("expected d1 evicted")
	}
	if got := quiet.CloseCode(); got != CloseHeartbeatTimeout {
		t.Errorf("expected close code %d, got %d", CloseHeartbeatTimeout, got)
	}
	if quiet.State() != StateClosed {
		t.Errorf("expected closed state, got %s", quiet.State())
	}
	if !h.IsDeviceOnline("d2") {
		t.Error("expected d2 to stay online")
	}
}

func TestHub_RegularHeartbeatsKeepSessionAlive(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(t, clock, Options{HeartbeatTimeout: 90 * time.Second, SweepInterval: 30 * time.Second})

	s := newTestSession(h, "d1", "u1")
	h.install(s)

	for elapsed := 30 * time.Second; elapsed <= 5*time.Minute; elapsed += 30 * time.Second {
		clock.Advance(30 * time.Second)
		if n := h.sweep(clock.Now()); n != 0 {
			t.Fatalf("evicted %d sessions after %v", n, elapsed)
		}
		h.route(s, []byte(`{"type":"heartbeat"}`))
		if ack := nextFrame(t, s); ack.Type != TypeHeartbeatAck {
			t.Fatalf("expected heartbeat_ack, got %s", ack.Type)
		}
	}

	if !h.IsDeviceOnline("d1") || !s.IsOpen() {
		t.Error("expected d1 to stay online")
	}
}

func TestHub_MalformedAndUnknownFramesDoNotRefreshLiveness(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(t, clock, Options{})

	s := newTestSession(h, "d1", "u1")
	h.install(s)
	before := s.LastHeartbeat()

	clock.Advance(10 * time.Second)
	h.route(s, []byte(`not json`))
	h.route(s, []byte(`{"type":"sms_received"}`))

	if !s.LastHeartbeat().Equal(before) {
		t.Error("expected liveness unchanged")
	}
	if !s.IsOpen() {
		t.Error("bad frames must not close the session")
	}
	select {
	case <-s.send:
		t.Error("bad frames must not produce a reply")
	default:
	}
}

func TestHub_HeartbeatIsAcknowledged(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(t, clock, Options{})

	s := newTestSession(h, "d1", "u1")
	h.install(s)

	clock.Advance(5 * time.Second)
	h.route(s, []byte(`{"type":"heartbeat","messageId":"hb-1"}`))

	if !s.LastHeartbeat().Equal(clock.Now()) {
		t.Errorf("expected liveness %v, got %v", clock.Now(), s.LastHeartbeat())
	}

	f := nextFrame(t, s)
	if f.Type != TypeHeartbeatAck {
		t.Fatalf("expected heartbeat_ack, got %s", f.Type)
	}
	var data HeartbeatAckData
	f.UnmarshalData(&data)
	if data.MessageID != "hb-1" {
		t.Errorf("expected echoed message id hb-1, got %s", data.MessageID)
	}
	if f.Timestamp != clock.Now().UnixMilli() {
		t.Errorf("expected timestamp %d, got %d", clock.Now().UnixMilli(), f.Timestamp)
	}
}

func TestHub_CallFramesAreRecorded(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(t, clock, Options{})
	rec := &mockRecorder{}
	h.SetCallRecorder(rec)

	s := newTestSession(h, "d1", "u1")
	h.install(s)

	h.route(s, []byte(`{"type":"call_status","data":{"callId":"c1","status":"ringing"}}`))
	h.route(s, []byte(`{"type":"call_status","data":{"callId":"c1","status":"exploded"}}`))
	h.route(s, []byte(`{"type":"call_status","data":{"status":"ringing"}}`))
	h.route(s, []byte(`{"type":"call_ended","data":{"callId":"c1","duration":37}}`))
	h.route(s, []byte(`{"type":"call_ended","data":{"callId":"c2","status":"rejected"}}`))

	if len(rec.updates) != 3 {
		t.Fatalf("expected 3 recorded updates, got %d: %+v", len(rec.updates), rec.updates)
	}

	if rec.updates[0].deviceID != "d1" || rec.updates[0].callID != "c1" || rec.updates[0].update.Status != domain.CallStatusRinging {
		t.Errorf("unexpected first update %+v", rec.updates[0])
	}

	ended := rec.updates[1].update
	if ended.Status != domain.CallStatusEnded || ended.Duration != 37 {
		t.Errorf("unexpected end update %+v", ended)
	}
	if ended.EndedAt == nil || !ended.EndedAt.Equal(clock.Now()) {
		t.Errorf("expected ended at %v, got %v", clock.Now(), ended.EndedAt)
	}

	if rec.updates[2].update.Status != domain.CallStatusRejected {
		t.Errorf("expected terminal status kept, got %s", rec.updates[2].update.Status)
	}
}

func TestHub_RecordFailureKeepsSessionOpen(t *testing.T) {
	h := newTestHub(t, nil, Options{})
	h.SetCallRecorder(&mockRecorder{err: errors.New("couch down")})

	s := newTestSession(h, "d1", "u1")
	h.install(s)
	h.route(s, []byte(`{"type":"call_status","data":{"callId":"c1","status":"connected"}}`))

	if !s.IsOpen() {
		t.Error("expected session to stay open")
	}
}

func TestHub_SendToDevice(t *testing.T) {
	h := newTestHub(t, nil, Options{})
	s := newTestSession(h, "d1", "u1")
	h.install(s)

	if !h.SendDialCommand("d1", domain.DialCommand{CallID: "c1", PhoneNumber: "+5511999990000"}) {
		t.Fatal("expected dial delivered")
	}
	f := nextFrame(t, s)
	if f.Type != TypeDial {
		t.Fatalf("expected dial, got %s", f.Type)
	}
	var cmd domain.DialCommand
	f.UnmarshalData(&cmd)
	if cmd.CallID != "c1" || cmd.PhoneNumber != "+5511999990000" {
		t.Errorf("unexpected dial payload %+v", cmd)
	}

	if h.SendDialCancel("missing", "c1") {
		t.Error("expected send to unknown device to fail")
	}

	s.markClosing(CloseHeartbeatTimeout)
	if h.SendDialCancel("d1", "c1") {
		t.Error("expected send to closing session to fail")
	}
}

func TestHub_SendToDeviceFullBuffer(t *testing.T) {
	h := newTestHub(t, nil, Options{SendBufferSize: 1})
	s := newTestSession(h, "d1", "u1")
	h.install(s)

	if !h.SendDialCancel("d1", "c1") {
		t.Fatal("expected first frame queued")
	}
	if h.SendDialCancel("d1", "c2") {
		t.Error("expected full buffer to reject")
	}
	if !s.IsOpen() {
		t.Error("a full buffer must not close the session")
	}
}

func TestHub_SendToUserSharesMessageID(t *testing.T) {
	h := newTestHub(t, nil, Options{})
	a := newTestSession(h, "d1", "u1")
	b := newTestSession(h, "d2", "u1")
	other := newTestSession(h, "d3", "u2")
	h.install(a)
	h.install(b)
	h.install(other)

	f, _ := NewFrame(TypeDialCancel, &DialCancelData{CallID: "c1"})
	if n := h.SendToUser("u1", f); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	fa, fb := nextFrame(t, a), nextFrame(t, b)
	if fa.MessageID == "" || fa.MessageID != fb.MessageID {
		t.Errorf("expected shared message id, got %q and %q", fa.MessageID, fb.MessageID)
	}
	select {
	case <-other.send:
		t.Error("other user's device received the frame")
	default:
	}

	if n := h.SendToUser("nobody", f); n != 0 {
		t.Errorf("expected 0 deliveries, got %d", n)
	}
}

func TestHub_RunPublishesPresence(t *testing.T) {
	h := newTestHub(t, nil, Options{})
	l := newRecordingListener()
	h.AddListener(l)
	stop := runHub(h)
	defer stop()

	first := newTestSession(h, "d1", "u1")
	if !h.Register(first) {
		t.Fatal("register failed")
	}
	l.expect(t, true, "d1")

	second := newTestSession(h, "d1", "u1")
	if !h.Register(second) {
		t.Fatal("register failed")
	}
	l.expect(t, true, "d1")
	l.expectNone(t)

	if got := first.CloseCode(); got != CloseSuperseded {
		t.Errorf("expected first closed with %d, got %d", CloseSuperseded, got)
	}

	h.Unregister(first)
	l.expectNone(t)
	if !h.IsDeviceOnline("d1") {
		t.Error("stale unregister removed the new session")
	}

	h.Evict(second, 4999, "test")
	l.expect(t, false, "d1")
	if h.OnlineDeviceCount() != 0 {
		t.Errorf("expected no devices online, got %d", h.OnlineDeviceCount())
	}
}

func TestHub_UnbindClosesAfterGrace(t *testing.T) {
	h := newTestHub(t, nil, Options{UnbindGrace: 20 * time.Millisecond})
	l := newRecordingListener()
	h.AddListener(l)
	stop := runHub(h)
	defer stop()

	s := newTestSession(h, "d1", "u1")
	h.Register(s)
	l.expect(t, true, "d1")

	h.SendDeviceUnbind("d1")

	f := nextFrame(t, s)
	if f.Type != TypeDeviceUnbind {
		t.Fatalf("expected device_unbind, got %s", f.Type)
	}
	var data DeviceUnbindData
	f.UnmarshalData(&data)
	if data.DeviceID != "d1" {
		t.Errorf("expected device d1, got %s", data.DeviceID)
	}

	l.expect(t, false, "d1")
	if got := s.CloseCode(); got != CloseUnbound {
		t.Errorf("expected close code %d, got %d", CloseUnbound, got)
	}
}

func TestHub_ShutdownClosesSessions(t *testing.T) {
	h := newTestHub(t, nil, Options{})
	stop := runHub(h)

	s := newTestSession(h, "d1", "u1")
	h.Register(s)
	stop()

	if got := s.CloseCode(); got != CloseServerShutdown {
		t.Errorf("expected close code %d, got %d", CloseServerShutdown, got)
	}
	if h.Register(newTestSession(h, "d2", "u1")) {
		t.Error("register after shutdown must fail")
	}
}

func TestSessionState_String(t *testing.T) {
	if StateActive.String() != "active" || SessionState(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
}

func decodeFrame(t *testing.T, raw []byte) *Frame {
	t.Helper()
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	return &f
}
