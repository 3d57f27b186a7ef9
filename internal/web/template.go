package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/telemetry-bridge/internal/status"
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
	"since": func(start, now time.Time) string {
		return humanize.RelTime(start, now, "ago", "from now")
	},
	"comma": func(n int) string {
		return humanize.Comma(int64(n))
	},
	"km": func(v float64) string {
		return fmt.Sprintf("%.2fkm", v)
	},
	"axes": func(v [3]float64) string {
		return fmt.Sprintf("%.4f / %.4f / %.4f", v[0], v[1], v[2])
	},
	"join": strings.Join,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Telemetry Bridge</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.normal { color: green; font-weight: bold; }
.fail { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Telemetry Bridge<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Telemetry</h2>
<table>
{{with .Last}}<tr><th>Status</th><td id="status" class="{{if eq .Status "FAIL"}}fail{{else}}normal{{end}}">{{.Status}}</td></tr>
<tr><th>Time</th><td id="time">{{.TimeSec}}s</td></tr>
<tr><th>Altitude</th><td id="altitude">{{km .Altitude}}</td></tr>
<tr><th>Drop</th><td id="drop">{{km .Drop}}</td></tr>
<tr><th>Gyro</th><td id="gyro">{{axes .Gyro}}</td></tr>
<tr><th>Magnetometer</th><td id="mag">{{axes .Magnetometer}}</td></tr>
<tr><th>Faults</th><td id="faults">{{join .Flags.Names ", "}}</td></tr>
{{else}}<tr><th>Status</th><td id="status" class="unknown">WAITING</td></tr>
{{end}}</table>

<h2>Counts</h2>
<table>
<tr><th>NORMAL</th><td>{{comma .Counts.Normal}}</td></tr>
<tr><th>FAIL</th><td>{{comma .Counts.Fail}}</td></tr>
<tr><th>Last FAIL</th><td>{{if gt .Counts.Fail 0}}{{.LastFailTick}}s{{else}}never{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}} ({{since .StartTime .Now}})</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Nominal altitude</th><td>{{km .Config.NominalAltitude}}</td></tr>
<tr><th>Thresholds</th><td>alt {{.Config.Thresholds.Altitude}}km, gyro {{.Config.Thresholds.Gyro}}, mag {{.Config.Thresholds.Mag}}</td></tr>
<tr><th>Faults</th><td>{{.Config.Faults}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.DBPath}}<tr><th>Recording</th><td>{{.Config.DBPath}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var statusEl = document.getElementById("status");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setText(id, text) {
    var el = document.getElementById(id);
    if (el) { el.textContent = text; }
  }

  function num(x, digits) {
    return x === null ? "n/a" : x.toFixed(digits);
  }

  function fmt3(v) {
    return v.map(function(x) { return num(x, 4); }).join(" / ");
  }

  function connect() {
    var scheme = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(scheme + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var r = JSON.parse(ev.data);
        statusEl.textContent = r.status;
        statusEl.className = r.status === "FAIL" ? "fail" : "normal";
        setText("time", r.time_sec + "s");
        setText("altitude", num(r.altitude_km, 2) + "km");
        setText("drop", num(r.drop_km, 2) + "km");
        setText("gyro", fmt3(r.gyro));
        setText("mag", fmt3(r.magnetometer));
        setText("faults", r.faults.join(", "));
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
