package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/sweeney/evm-controller/internal/config"
	"github.com/sweeney/evm-controller/internal/gpio"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/meter"
	"github.com/sweeney/evm-controller/internal/mqtt"
	"github.com/sweeney/evm-controller/internal/status"
)

func TestStateString(t *testing.T) {
	if stateString(true) != "ON" {
		t.Errorf("expected ON, got %s", stateString(true))
	}
	if stateString(false) != "OFF" {
		t.Errorf("expected OFF, got %s", stateString(false))
	}
}

func TestSignalName(t *testing.T) {
	cases := map[os.Signal]string{
		syscall.SIGINT:  "SIGINT",
		syscall.SIGTERM: "SIGTERM",
		syscall.SIGHUP:  "UNKNOWN",
	}
	for sig, want := range cases {
		if got := signalName(sig); got != want {
			t.Errorf("signalName(%v): got %s, want %s", sig, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug"); err != nil {
		t.Errorf("debug: unexpected error %v", err)
	}
	if _, err := newLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestPrintState(t *testing.T) {
	board := gpio.NewFakeBoard()
	board.SetLevel(gpio.ButtonRight, true)
	meters := meter.NewFakeMeter()
	meters.Set(meter.AddrLeft, 1234)
	meters.Fail(meter.AddrRight, meter.ErrNoReply)

	var buf bytes.Buffer
	if err := printStateTo(&buf, board, meters, config.Default()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"button_left: OFF",
		"button_right: ON",
		"coin: OFF",
		"bill: OFF",
		"meter LEFT (0x01): 1234 Wh",
		"meter RIGHT (0x02): error:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStateReadError(t *testing.T) {
	board := gpio.NewFakeBoard()
	board.FailReads(errors.New("line busy"))

	var buf bytes.Buffer
	if err := printStateTo(&buf, board, meter.NewFakeMeter(), config.Default()); err == nil {
		t.Error("expected error when inputs cannot be read")
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = ""
	cfg.MQTT.Heartbeat = 0
	cfg.Metering.PollInterval = 20 * time.Millisecond
	cfg.Metering.PushTimeout = 10 * time.Millisecond
	return cfg
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func frame(tr *status.Tracker) logic.Frame {
	return tr.Snapshot().Frame
}

func TestRunVendsAndShutsDownSafe(t *testing.T) {
	cfg := testConfig()
	pricing, err := cfg.PricingModel()
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}

	board := gpio.NewFakeBoard()
	meters := meter.NewFakeMeter()
	meters.Set(meter.AddrLeft, 5000)
	pub := mqtt.NewFakePublisher()
	pub.SetConnected(true)

	a := newApp(cfg, pricing, board, meters, pub, zaptest.NewLogger(t))
	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- a.run(sig) }()

	eventually(t, "first frame", func() bool { return a.tracker.Snapshot().Rendered })

	// Coin before any selection goes to pending.
	board.Press(gpio.CoinPulse)
	eventually(t, "pending coin", func() bool { return frame(a.tracker).PendingCents == logic.CoinCents })
	board.Release(gpio.CoinPulse)
	if board.BillAcceptor() {
		t.Error("bill acceptor should be inhibited with no outlet selected")
	}

	// Selecting left moves pending to the left outlet and energizes it.
	board.Press(gpio.ButtonLeft)
	board.Release(gpio.ButtonLeft)
	eventually(t, "left relay", func() bool { return board.Relay(logic.Left) })
	if !board.BillAcceptor() {
		t.Error("bill acceptor should be enabled once an outlet is selected")
	}

	board.Press(gpio.BillPulse)
	eventually(t, "bill credit", func() bool {
		return frame(a.tracker).Left.BalanceCents == logic.CoinCents+logic.BillCents
	})
	board.Release(gpio.BillPulse)

	// 100 Wh at 1000 cents per kWh is 100 cents.
	eventually(t, "meter baseline", func() bool { return a.tracker.Snapshot().Meter(logic.Left).OK })
	meters.Add(meter.AddrLeft, 100)
	eventually(t, "energy debit", func() bool {
		return frame(a.tracker).Left.BalanceCents == logic.CoinCents+logic.BillCents-100
	})

	sig <- syscall.SIGTERM
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after SIGTERM")
	}

	if board.Relay(logic.Left) || board.Relay(logic.Right) {
		t.Error("relays should be off after shutdown")
	}
	if board.BillAcceptor() {
		t.Error("bill acceptor should be inhibited after shutdown")
	}

	events := pub.SystemEvents()
	if len(events) < 2 {
		t.Fatalf("expected STARTUP and SHUTDOWN, got %d events", len(events))
	}
	if events[0].Event != "STARTUP" {
		t.Errorf("first event: got %s, want STARTUP", events[0].Event)
	}
	last := events[len(events)-1]
	if last.Event != "SHUTDOWN" || last.Reason != "SIGTERM" || !last.Retained {
		t.Errorf("last event: got %+v", last)
	}
	if !strings.Contains(string(last.RawPayload), `"event":"SHUTDOWN"`) {
		t.Errorf("shutdown payload should carry a status snapshot: %s", last.RawPayload)
	}
	if len(pub.Frames()) == 0 {
		t.Error("expected frames on the display bus")
	}
}

func TestRunWithoutDisplayBus(t *testing.T) {
	cfg := testConfig()
	cfg.MQTT.Broker = ""
	pricing, _ := cfg.PricingModel()

	board := gpio.NewFakeBoard()
	a := newApp(cfg, pricing, board, meter.NewFakeMeter(), nil, zaptest.NewLogger(t))
	if a.display != nil || a.server != nil {
		t.Fatal("display bus and status server should be disabled")
	}

	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- a.run(sig) }()

	eventually(t, "first frame", func() bool { return a.tracker.Snapshot().Rendered })
	sig <- syscall.SIGINT

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after SIGINT")
	}
}

func TestRunRelayWriteFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	pricing, _ := cfg.PricingModel()

	board := gpio.NewFakeBoard()
	board.FailWrites(errors.New("line busy"))
	a := newApp(cfg, pricing, board, meter.NewFakeMeter(), nil, zaptest.NewLogger(t))

	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- a.run(sig) }()

	eventually(t, "first frame", func() bool { return a.tracker.Snapshot().Rendered })
	board.Press(gpio.ButtonRight)
	board.Release(gpio.ButtonRight)
	eventually(t, "selection", func() bool { return frame(a.tracker).Selected == logic.Right })

	// Writes recover and the pending level is written on a later step.
	board.FailWrites(nil)
	eventually(t, "bill acceptor enabled", board.BillAcceptor)

	sig <- syscall.SIGTERM
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
}
