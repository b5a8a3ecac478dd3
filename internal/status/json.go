package status

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/evm-controller/internal/display"
	"github.com/sweeney/evm-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	Ready         bool         `json:"ready"`
	Selected      string       `json:"selected"`
	PendingCents  uint64       `json:"pending_cents"`
	Outlets       []OutletJSON `json:"outlets"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Config        ConfigJSON   `json:"config"`
}

// OutletJSON is one outlet's ledger and meter view.
type OutletJSON struct {
	Side         string    `json:"side"`
	BalanceCents uint64    `json:"balance_cents"`
	Balance      string    `json:"balance"`
	EnergyWh     uint64    `json:"energy_wh"`
	EnergyKWh    string    `json:"energy_kwh"`
	Relay        bool      `json:"relay"`
	Meter        MeterJSON `json:"meter"`
}

// MeterJSON is the JSON representation of a meter poll.
type MeterJSON struct {
	Addr       uint8  `json:"addr"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	RegisterWh uint32 `json:"register_wh"`
	TotalWh    uint64 `json:"total_wh"`
	CarryWh    uint64 `json:"carry_wh"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Buttons      int    `json:"buttons"`
	Coins        int    `json:"coins"`
	Bills        int    `json:"bills"`
	Debits       int    `json:"debits"`
	DebitedCents uint64 `json:"debited_cents"`
	Expirations  int    `json:"expirations"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PriceCents   uint64 `json:"price_cents"`
	UnitsPerCent uint64 `json:"units_per_cent"`
	UpdateMs     int64  `json:"update_ms"`
	InactivityMs int64  `json:"inactivity_ms"`
	PollMs       int64  `json:"poll_ms"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	f := snap.Frame
	outlets := make([]OutletJSON, 0, len(logic.Sides))
	for _, side := range logic.Sides {
		o := f.Outlet(side)
		m := snap.Meter(side)
		outlets = append(outlets, OutletJSON{
			Side:         strings.ToLower(side.String()),
			BalanceCents: o.BalanceCents,
			Balance:      display.FormatCents(o.BalanceCents),
			EnergyWh:     o.EnergyUnits,
			EnergyKWh:    display.FormatKWh(o.EnergyUnits),
			Relay:        o.RelayOn,
			Meter: MeterJSON{
				Addr:       m.Addr,
				OK:         m.OK,
				Error:      m.Err,
				RegisterWh: m.Register,
				TotalWh:    m.TotalWh,
				CarryWh:    m.CarryWh,
			},
		})
	}

	return StatusInner{
		Version:       snap.Config.Version,
		Ready:         snap.Rendered,
		Selected:      f.Selected.String(),
		PendingCents:  f.PendingCents,
		Outlets:       outlets,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Buttons:      f.Counts.Buttons,
			Coins:        f.Counts.Coins,
			Bills:        f.Counts.Bills,
			Debits:       f.Counts.Debits,
			DebitedCents: f.Counts.DebitedCents,
			Expirations:  f.Counts.Expirations,
		},
		Config: ConfigJSON{
			PriceCents:   snap.Config.PriceCents,
			UnitsPerCent: snap.Config.UnitsPerCent,
			UpdateMs:     snap.Config.UpdateMs,
			InactivityMs: snap.Config.InactivityMs,
			PollMs:       snap.Config.PollMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
