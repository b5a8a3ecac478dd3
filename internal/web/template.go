package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/evm-controller/internal/display"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"kwh":   display.FormatKWh,
	"cents": display.FormatCents,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>EVM Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.selected { background: #ffd; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>EVM Controller {{.Config.Version}}{{if .Live}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Outlets</h2>
<table>
<tr><th>Outlet</th><th>Balance</th><th>Energy</th><th>Relay</th></tr>
{{range .Outlets}}<tr id="outlet-{{.Side}}"{{if eq .Side $.View.Selected}} class="selected"{{end}}>
<td>{{.Side}}</td>
<td class="balance">{{.Balance}}</td>
<td class="energy">{{.EnergyKWh}} kWh</td>
<td class="relay {{if .Relay}}on{{else}}off{{end}}">{{if .Relay}}on{{else}}off{{end}}</td>
</tr>
{{end}}</table>

<table>
<tr><th>Selected</th><td id="selected">{{.View.Selected}}</td></tr>
<tr><th>Pending credit</th><td id="pending">{{.View.Pending}}</td></tr>
<tr><th>Price</th><td>{{.View.Price}}/kWh</td></tr>
<tr><th>Ready</th><td>{{if .Rendered}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Meters</h2>
<table>
<tr><th>Outlet</th><th>Addr</th><th>Register</th><th>Metered</th><th>Carry</th></tr>
{{range .Outlets}}<tr>
<td>{{.Side}}</td>
<td>{{printf "0x%02x" .Meter.Addr}}</td>
<td class="{{if .Meter.OK}}connected{{else}}disconnected{{end}}">{{.Meter.Register}} Wh{{if .Meter.Err}} ({{.Meter.Err}}){{end}}</td>
<td>{{kwh .Meter.TotalWh}} kWh</td>
<td>{{.Meter.CarryWh}} Wh</td>
</tr>
{{end}}</table>

<h2>Event Counts</h2>
<table>
<tr><th>Buttons</th><td>{{.Frame.Counts.Buttons}}</td></tr>
<tr><th>Coins</th><td>{{.Frame.Counts.Coins}}</td></tr>
<tr><th>Bills</th><td>{{.Frame.Counts.Bills}}</td></tr>
<tr><th>Debits</th><td>{{.Frame.Counts.Debits}} ({{cents .Frame.Counts.DebitedCents}})</td></tr>
<tr><th>Expirations</th><td>{{.Frame.Counts.Expirations}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Update</th><td>{{.Config.UpdateMs}}ms</td></tr>
<tr><th>Inactivity</th><td>{{.Config.InactivityMs}}ms</td></tr>
<tr><th>Meter poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
{{if .Live}}
<script>
(function() {
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function apply(f) {
    document.getElementById("selected").textContent = f.selected;
    document.getElementById("pending").textContent = f.pending;
    f.outlets.forEach(function(o) {
      var row = document.getElementById("outlet-" + o.side);
      if (!row) { return; }
      row.className = o.side === f.selected ? "selected" : "";
      row.querySelector(".balance").textContent = o.balance;
      row.querySelector(".energy").textContent = o.energy_kwh + " kWh";
      var relay = row.querySelector(".relay");
      relay.textContent = o.relay ? "on" : "off";
      relay.className = "relay " + (o.relay ? "on" : "off");
    });
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type === "frame") { apply(msg.payload); }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
{{end}}
</body>
</html>
`

// outletRow joins an outlet's frame view with its meter status.
type outletRow struct {
	display.OutletView
	Meter status.MeterStatus
}

func renderHTML(w io.Writer, snap status.Snapshot, live bool) {
	view := display.NewView(snap.Frame)
	rows := make([]outletRow, len(view.Outlets))
	for i, side := range logic.Sides {
		rows[i] = outletRow{OutletView: view.Outlets[i], Meter: snap.Meter(side)}
	}

	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Live    bool
		View    display.View
		Outlets []outletRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Live:     live,
		View:     view,
		Outlets:  rows,
	}
	indexTmpl.Execute(w, data)
}
