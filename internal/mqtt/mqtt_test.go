package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

func testReport() logic.Report {
	return logic.Report{
		TimeSec:      16,
		Altitude:     342.25,
		Drop:         17.75,
		Gyro:         logic.Vec3{0.01, -0.5625, 0.002},
		Magnetometer: logic.Vec3{},
		Status:       logic.StatusFail,
		Flags:        logic.FaultAltitude | logic.FaultGyroY,
	}
}

func TestFormatPayload(t *testing.T) {
	at := time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

	payload, err := FormatPayload(at, testReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	tp := parsed.Telemetry
	if tp.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", tp.Timestamp)
	}
	if tp.TimeSec != 16 {
		t.Errorf("time_sec: got %d, want 16", tp.TimeSec)
	}
	if tp.AltitudeKm == nil || *tp.AltitudeKm != 342.25 {
		t.Errorf("altitude_km: got %v, want 342.25", tp.AltitudeKm)
	}
	if tp.DropKm == nil || *tp.DropKm != 17.75 {
		t.Errorf("drop_km: got %v, want 17.75", tp.DropKm)
	}
	if tp.Gyro[1] == nil || *tp.Gyro[1] != -0.5625 {
		t.Errorf("gyro[1]: got %v, want -0.5625", tp.Gyro[1])
	}
	if tp.Status != "FAIL" {
		t.Errorf("status: got %s, want FAIL", tp.Status)
	}
	if strings.Join(tp.Faults, ",") != "GYRO_Y,ALTITUDE" {
		t.Errorf("faults: got %v, want [GYRO_Y ALTITUDE]", tp.Faults)
	}
}

func TestFormatPayloadNormalHasEmptyFaults(t *testing.T) {
	r := logic.Report{TimeSec: 0, Altitude: 359.999, Drop: 0.001, Gyro: logic.Vec3{0, 0.005, 0}, Status: logic.StatusNormal}

	payload, err := FormatPayload(time.Unix(0, 0), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(payload), `"faults":[]`) {
		t.Errorf("expected empty faults array, got %s", payload)
	}
	if !strings.Contains(string(payload), `"status":"NORMAL"`) {
		t.Errorf("expected NORMAL status, got %s", payload)
	}
}

func TestFormatPayloadNonFinite(t *testing.T) {
	r := testReport()
	r.Gyro[0] = math.NaN()
	r.Altitude = math.Inf(-1)
	r.Flags |= logic.FaultNonFinite | logic.FaultGyroX

	payload, err := FormatPayload(time.Unix(0, 0), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		`"altitude_km":null`,
		`"drop_km":17.75`,
		`"gyro":[null,-0.5625,0.002]`,
		`"NON_FINITE"`,
	} {
		if !strings.Contains(string(payload), want) {
			t.Errorf("payload missing %s: %s", want, payload)
		}
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	at := time.Date(2026, 2, 3, 3, 18, 12, 0, loc)

	payload, err := FormatPayload(at, testReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	json.Unmarshal(payload, &parsed)
	if parsed.Telemetry.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Telemetry.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "spacecraft/telemetry/reports" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "spacecraft/telemetry/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"system":{"timestamp":"2026-02-03T10:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != want {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Unix(0, 0), Event: "RECONNECTED"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(payload), "reason") {
		t.Errorf("reason should be omitted: %s", payload)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	var parsed SystemPayload
	if err := json.Unmarshal([]byte(willPayload()), &parsed); err != nil {
		t.Fatalf("invalid will JSON: %v", err)
	}
	if parsed.System.Event != "OFFLINE" {
		t.Errorf("event: got %q, want OFFLINE", parsed.System.Event)
	}
	if parsed.System.Reason != "LWT" {
		t.Errorf("reason: got %q, want LWT", parsed.System.Reason)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(time.Now(), testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(f.Reports))
	}
	if f.Reports[0].TimeSec != 16 {
		t.Errorf("unexpected report: %+v", f.Reports[0])
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(time.Now(), testReport()); err == nil {
		t.Error("expected error")
	}
	if len(f.Reports) != 0 {
		t.Errorf("expected no reports recorded on error, got %d", len(f.Reports))
	}
}

func TestFakePublisherSystemAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(time.Now(), testReport())
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "SIGINT"})
	f.Close()

	if len(f.SystemEvents) != 1 || f.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("unexpected system events: %+v", f.SystemEvents)
	}
	if !f.Closed {
		t.Error("expected Closed=true")
	}

	f.Reset()
	if len(f.Reports) != 0 || len(f.Payloads) != 0 || len(f.SystemEvents) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("Reset should clear recorded messages")
	}
	if f.Closed {
		t.Error("Reset should clear Closed")
	}
}

// --- RealPublisher with a fake paho client ---

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sentMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	open         bool
	publishErr   error
	sent         []sentMsg
	disconnected bool

	// afterCheck runs once, after the next IsConnectionOpen has read open.
	afterCheck func()
	// beforePublish runs before each Publish with the number of messages
	// sent so far.
	beforePublish func(sent int)
}

func (c *fakeClient) IsConnectionOpen() bool {
	open := c.open
	if hook := c.afterCheck; hook != nil {
		c.afterCheck = nil
		hook()
	}
	return open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	if c.beforePublish != nil {
		c.beforePublish(len(c.sent))
	}
	if c.publishErr != nil {
		return &fakeToken{err: c.publishErr}
	}
	c.sent = append(c.sent, sentMsg{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{}
}

func sentTicks(t *testing.T, msgs []sentMsg) []int {
	t.Helper()
	var ticks []int
	for i, m := range msgs {
		if m.topic != Topic {
			continue
		}
		var parsed Payload
		if err := json.Unmarshal(m.payload, &parsed); err != nil {
			t.Fatalf("message %d: invalid JSON: %v", i, err)
		}
		ticks = append(ticks, parsed.Telemetry.TimeSec)
	}
	return ticks
}

func reportAt(tick int) logic.Report {
	r := testReport()
	r.TimeSec = tick
	return r
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func newTestPublisher(c *fakeClient) *RealPublisher {
	return &RealPublisher{
		client: c,
		now:    func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		buffer: newOutbox(4),
	}
}

func TestRealPublisherSendsWhenConnected(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)

	if err := p.Publish(time.Now(), testReport()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	if len(c.sent) != 2 {
		t.Fatalf("expected 2 messages sent, got %d", len(c.sent))
	}
	if c.sent[0].topic != Topic || c.sent[0].qos != 0 || c.sent[0].retained {
		t.Errorf("report message: got %+v", c.sent[0])
	}
	if c.sent[1].topic != TopicSystem || c.sent[1].qos != 1 || !c.sent[1].retained {
		t.Errorf("system message: got %+v", c.sent[1])
	}
	if !p.IsConnected() {
		t.Error("expected IsConnected=true")
	}
}

func TestRealPublisherPublishError(t *testing.T) {
	c := &fakeClient{open: true, publishErr: errors.New("broker said no")}
	p := newTestPublisher(c)

	err := p.Publish(time.Now(), testReport())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "broker said no") {
		t.Errorf("error should wrap cause, got %v", err)
	}
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{open: false}
	p := newTestPublisher(c)

	for i := 0; i < 3; i++ {
		r := testReport()
		r.TimeSec = i
		if err := p.Publish(time.Now(), r); err != nil {
			t.Fatalf("Publish while disconnected should buffer, got %v", err)
		}
	}
	if len(c.sent) != 0 {
		t.Fatalf("nothing should be sent while disconnected, got %d", len(c.sent))
	}
	if p.Buffered() != 3 {
		t.Errorf("Buffered: got %d, want 3", p.Buffered())
	}

	// First connection: replay in order, no RECONNECTED event.
	c.open = true
	p.onConnect()

	if len(c.sent) != 3 {
		t.Fatalf("expected 3 replayed messages, got %d", len(c.sent))
	}
	for i, m := range c.sent {
		var parsed Payload
		if err := json.Unmarshal(m.payload, &parsed); err != nil {
			t.Fatalf("message %d: invalid JSON: %v", i, err)
		}
		if parsed.Telemetry.TimeSec != i {
			t.Errorf("message %d: time_sec %d, want %d", i, parsed.Telemetry.TimeSec, i)
		}
	}
	if p.Buffered() != 0 {
		t.Errorf("Buffered after replay: got %d, want 0", p.Buffered())
	}
}

func TestRealPublisherReconnectAnnouncesDrops(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)
	p.onConnect()

	c.open = false
	for i := 0; i < 6; i++ { // capacity 4, so 2 are dropped
		p.Publish(time.Now(), testReport())
	}

	c.open = true
	p.onConnect()

	if len(c.sent) != 5 {
		t.Fatalf("expected 4 replayed + 1 RECONNECTED, got %d", len(c.sent))
	}
	last := c.sent[len(c.sent)-1]
	if last.topic != TopicSystem {
		t.Fatalf("last message topic: got %s, want %s", last.topic, TopicSystem)
	}
	var parsed SystemPayload
	if err := json.Unmarshal(last.payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "RECONNECTED" {
		t.Errorf("event: got %q, want RECONNECTED", parsed.System.Event)
	}
	if parsed.System.Reason != "dropped 2 buffered reports" {
		t.Errorf("reason: got %q", parsed.System.Reason)
	}
}

func TestRealPublisherConnectBetweenCheckAndQueue(t *testing.T) {
	c := &fakeClient{open: false}
	p := newTestPublisher(c)

	// The broker comes up right after Publish has seen the connection down.
	connected := make(chan struct{})
	c.afterCheck = func() {
		c.open = true
		go func() {
			p.onConnect()
			close(connected)
		}()
	}

	if err := p.Publish(time.Now(), reportAt(7)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("onConnect did not finish")
	}

	if got := sentTicks(t, c.sent); len(got) != 1 || got[0] != 7 {
		t.Errorf("sent ticks: got %v, want [7]", got)
	}
	if p.Buffered() != 0 {
		t.Errorf("Buffered: got %d, want 0 (report left behind)", p.Buffered())
	}
}

func TestRealPublisherPublishDuringReplayKeepsOrder(t *testing.T) {
	c := &fakeClient{open: false}
	p := newTestPublisher(c)
	for i := 0; i < 3; i++ {
		p.Publish(time.Now(), reportAt(i))
	}

	// A new tick arrives while the backlog is still going out.
	c.open = true
	c.beforePublish = func(sent int) {
		if sent == 1 {
			c.beforePublish = nil
			if err := p.Publish(time.Now(), reportAt(3)); err != nil {
				t.Errorf("Publish during replay: %v", err)
			}
		}
	}
	p.onConnect()

	got := sentTicks(t, c.sent)
	want := []int{0, 1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("sent ticks: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent ticks: got %v, want %v", got, want)
			break
		}
	}

	// Replay finished, so the next report goes straight out.
	if err := p.Publish(time.Now(), reportAt(4)); err != nil {
		t.Fatalf("Publish after replay: %v", err)
	}
	if got := sentTicks(t, c.sent); got[len(got)-1] != 4 || p.Buffered() != 0 {
		t.Errorf("after replay: sent %v, buffered %d", got, p.Buffered())
	}
}

func TestRealPublisherReplayFailureRequeues(t *testing.T) {
	c := &fakeClient{open: false}
	p := newTestPublisher(c)
	for i := 0; i < 3; i++ {
		p.Publish(time.Now(), reportAt(i))
	}

	c.open = true
	c.beforePublish = func(sent int) {
		if sent == 1 {
			c.publishErr = errors.New("connection reset")
		}
	}
	p.onConnect()

	if got := sentTicks(t, c.sent); len(got) != 1 || got[0] != 0 {
		t.Fatalf("sent ticks: got %v, want [0]", got)
	}
	if p.Buffered() != 2 {
		t.Fatalf("Buffered: got %d, want 2 requeued", p.Buffered())
	}

	c.beforePublish = nil
	c.publishErr = nil
	p.onConnect()

	if got := sentTicks(t, c.sent); len(got) != 3 || got[1] != 1 || got[2] != 2 {
		t.Errorf("sent ticks after reconnect: got %v, want [0 1 2]", got)
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.disconnected {
		t.Error("expected Disconnect to be called")
	}
}
