package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/evm-controller/internal/logic"
)

func sampleFrame() logic.Frame {
	return logic.Frame{
		Left:         logic.OutletFrame{BalanceCents: 1230, EnergyUnits: 1230, RelayOn: true},
		Right:        logic.OutletFrame{},
		PendingCents: 0,
		PriceCents:   1000,
		Selected:     logic.Left,
		Counts:       logic.EventCounts{Buttons: 1, Coins: 3, Bills: 2, Debits: 4, DebitedCents: 7},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{Version: "0.1", PriceCents: 1000, PollMs: 100, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PollMs != 100 {
		t.Errorf("Config.PollMs: got %d, want 100", snap.Config.PollMs)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.Rendered {
		t.Error("expected Rendered=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestRenderAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Render(sampleFrame())

	snap := tr.Snapshot()
	if !snap.Rendered {
		t.Error("expected Rendered=true")
	}
	if snap.Frame.Left.BalanceCents != 1230 {
		t.Errorf("Left.BalanceCents: got %d, want 1230", snap.Frame.Left.BalanceCents)
	}
	if snap.Frame.Selected != logic.Left {
		t.Errorf("Selected: got %v, want LEFT", snap.Frame.Selected)
	}
}

func TestSetMeter(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMeter(logic.Right, MeterStatus{Addr: 2, OK: true, Register: 42, TotalWh: 5})
	tr.SetMeter(logic.None, MeterStatus{Addr: 9})

	snap := tr.Snapshot()
	if got := snap.Meter(logic.Right); got.Register != 42 || !got.OK {
		t.Errorf("right meter: got %+v", got)
	}
	if got := snap.Meter(logic.Left); got.Addr != 0 {
		t.Errorf("left meter should be untouched, got %+v", got)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Render(sampleFrame())

	snap1 := tr.Snapshot()

	tr.Render(logic.Frame{Selected: logic.Right})

	if snap1.Frame.Selected != logic.Left {
		t.Error("snapshot should be a copy; Selected was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Frame:         sampleFrame(),
		Rendered:      true,
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{Version: "0.1", PriceCents: 1000, UnitsPerCent: 1, Broker: "tcp://localhost:1883"},
	}
	snap.Meters[0] = MeterStatus{Addr: 1, OK: true, Register: 9000, TotalWh: 12, CarryWh: 0}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if !s.Ready {
		t.Error("expected Ready=true")
	}
	if s.Selected != "LEFT" {
		t.Errorf("Selected: got %q, want LEFT", s.Selected)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if len(s.Outlets) != 2 {
		t.Fatalf("Outlets: got %d, want 2", len(s.Outlets))
	}
	left := s.Outlets[0]
	if left.Side != "left" || left.Balance != "12.30" || left.EnergyKWh != "1.230" || !left.Relay {
		t.Errorf("left outlet: got %+v", left)
	}
	if left.Meter.RegisterWh != 9000 || left.Meter.TotalWh != 12 {
		t.Errorf("left meter: got %+v", left.Meter)
	}
	if s.Counts.Coins != 3 || s.Counts.DebitedCents != 7 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Version != "0.1" {
		t.Errorf("Version: got %q, want 0.1", s.Version)
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty Event/Reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Frame:     sampleFrame(),
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writers
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Render(logic.Frame{PendingCents: uint64(i)})
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.SetMeter(logic.Left, MeterStatus{Register: uint32(i)})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
