package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/evm-controller/internal/logic"
)

func sampleFrame() logic.Frame {
	return logic.Frame{
		Left:         logic.OutletFrame{BalanceCents: 1000, EnergyUnits: 1000, RelayOn: true},
		Right:        logic.OutletFrame{},
		PendingCents: 510,
		PriceCents:   1000,
		Selected:     logic.Right,
	}
}

func TestTopics(t *testing.T) {
	if TopicFrame != "evm/display/frame" {
		t.Errorf("unexpected frame topic: %s", TopicFrame)
	}
	if TopicSystem != "evm/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatFramePayload(t *testing.T) {
	at := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

	payload, err := FormatFramePayload(sampleFrame(), at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed FramePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	f := parsed.Frame
	if f.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("timestamp: got %s", f.Timestamp)
	}
	if f.Selected != "right" {
		t.Errorf("selected: got %s, want right", f.Selected)
	}
	if f.Pending != "5.10" || f.PendingCents != 510 {
		t.Errorf("pending: got %s (%d)", f.Pending, f.PendingCents)
	}
	if f.Price != "10.00" {
		t.Errorf("price: got %s", f.Price)
	}
	if len(f.Outlets) != 2 {
		t.Fatalf("outlets: got %d, want 2", len(f.Outlets))
	}
	left := f.Outlets[0]
	if left.Side != "left" || left.Balance != "10.00" || left.EnergyKWh != "1.000" || !left.Relay {
		t.Errorf("left outlet: got %+v", left)
	}
	if f.Outlets[1].Relay {
		t.Error("right relay should be off")
	}
	if len(f.Lines) != 4 {
		t.Errorf("lines: got %d (%q), want 4", len(f.Lines), f.Lines)
	}
}

func TestFormatFramePayloadFlattensView(t *testing.T) {
	payload, err := FormatFramePayload(logic.Frame{PriceCents: 800}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	frame := raw["frame"]
	for _, key := range []string{"timestamp", "selected", "pending_cents", "price_cents", "outlets", "lines"} {
		if _, ok := frame[key]; !ok {
			t.Errorf("missing key %q in %s", key, payload)
		}
	}
	if _, nested := frame["View"]; nested {
		t.Error("view should be flattened into frame")
	}
	if frame["selected"] != "none" {
		t.Errorf("selected: got %v, want none", frame["selected"])
	}
}

func TestFormatFramePayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	at := time.Date(2026, 2, 10, 3, 30, 0, 0, loc)

	payload, err := FormatFramePayload(logic.Frame{}, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed FramePayload
	json.Unmarshal(payload, &parsed)
	if parsed.Frame.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Frame.Timestamp)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN event, got %s", parsed.System.Event)
	}
	if parsed.System.Reason != "MQTT_DISCONNECT" {
		t.Errorf("expected MQTT_DISCONNECT reason, got %s", parsed.System.Reason)
	}
}

func TestFormatSystemPayloadReconnected(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	event := SystemEvent{Event: "STARTUP", RawPayload: raw}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishFrame(sampleFrame()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frames := f.Frames()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0] != sampleFrame() {
		t.Errorf("frame mismatch: %+v", frames[0])
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.FailFrames(errors.New("test error"))

	if err := f.PublishFrame(sampleFrame()); err == nil {
		t.Error("expected error")
	}
	if len(f.Frames()) != 0 {
		t.Error("failed frame should not be recorded")
	}

	f.FailFrames(nil)
	if err := f.PublishFrame(sampleFrame()); err != nil {
		t.Errorf("unexpected error after recovery: %v", err)
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()

	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "STARTUP",
		Retained:  true,
	}
	if err := f.PublishSystem(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := f.SystemEvents()
	if len(events) != 1 || events[0].Event != "STARTUP" || !events[0].Retained {
		t.Fatalf("unexpected system events: %+v", events)
	}
	payloads := f.SystemPayloads()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"STARTUP"}}`
	if string(payloads[0]) != expected {
		t.Errorf("unexpected payload: %s", payloads[0])
	}
}

func TestFakePublisherPublishSystemError(t *testing.T) {
	f := NewFakePublisher()
	f.FailSystem(errors.New("broker down"))

	if err := f.PublishSystem(SystemEvent{Event: "SHUTDOWN"}); err == nil {
		t.Error("expected error")
	}
	if len(f.SystemEvents()) != 0 {
		t.Error("failed event should not be recorded")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.SetConnected(true)
	f.PublishFrame(sampleFrame())
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()

	if !f.Closed() || !f.IsConnected() {
		t.Error("expected closed and connected")
	}

	f.Reset()
	if f.Closed() || f.IsConnected() {
		t.Error("Reset should clear closed and connected")
	}
	if len(f.Frames()) != 0 || len(f.SystemEvents()) != 0 || len(f.SystemPayloads()) != 0 {
		t.Error("Reset should clear recordings")
	}
}

func TestFakePublisherCopiesAreIndependent(t *testing.T) {
	f := NewFakePublisher()
	f.PublishFrame(logic.Frame{PendingCents: 10})

	frames := f.Frames()
	frames[0].PendingCents = 99

	if f.Frames()[0].PendingCents != 10 {
		t.Error("Frames should return a copy")
	}
}
