package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/status"
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
	"utc": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Motion Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: green; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Motion Sensor{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Activity</h2>
<table>
<tr><th>Last</th><td id="last-activity" class="{{if .LastEvent}}active{{else}}idle{{end}}">{{if .LastEvent}}{{.LastName}}{{else}}none yet{{end}}</td></tr>
<tr><th>At</th><td id="last-at">{{if .LastEvent}}{{utc .LastEvent.Timestamp}}{{else}}-{{end}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no ({{.Pipeline.WindowSize}}/{{.Pipeline.WindowCapacity}}){{end}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
{{range .CountRows}}<tr><th>{{.Name}}</th><td>{{.Count}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Loops</h2>
<table>
<tr><th>Samples</th><td>{{.Pipeline.SampleCycles}} ({{.Pipeline.SensorErrors}} errors)</td></tr>
<tr><th>Scores</th><td>{{.Pipeline.Classifications}} ({{.Pipeline.ClassifierErrors}} errors, {{.Pipeline.Discarded}} discarded)</td></tr>
<tr><th>Pending</th><td>{{.Pipeline.PendingTuples}}</td></tr>
</table>

<h2>Debounce</h2>
<table>
<tr><th>Min span</th><td>{{.Thresholds.TimeDiffThresholdMs}}ms</td></tr>
<tr><th>Min tuples</th><td>{{.Thresholds.MinTuples}}</td></tr>
<tr><th>Cleanup</th><td>&le;{{.Thresholds.CleanMaxTuples}} tuples after {{.Thresholds.CleanMaxTimeDiffMs}}ms</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms x {{.Config.WindowCycles}}</td></tr>
<tr><th>Score</th><td>{{.Config.ScoreMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/config">config</a> | <a href="/events">events</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "motion/sensor/events";
  var dot = document.getElementById("live-dot");
  var lastEl = document.getElementById("last-activity");
  var atEl = document.getElementById("last-at");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });
  client.on("reconnect", function() { setDot("pending", "reconnecting"); });
  client.on("offline", function() { setDot("err", "offline"); });
  client.on("error", function() { setDot("err", "error"); });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.activity) {
        lastEl.textContent = msg.activity.name || String(msg.activity.label);
        lastEl.className = "active";
        atEl.textContent = msg.activity.timestamp;
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

type countRow struct {
	Name  string
	Count int
}

type indexView struct {
	status.Snapshot
	Uptime    time.Duration
	Ready     bool
	LastName  string
	CountRows []countRow
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	view := indexView{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
	}
	if snap.LastEvent != nil {
		view.LastName = snap.Config.LabelName(snap.LastEvent.Label)
	}

	labels := make([]logic.Label, 0, len(snap.Config.Names)+len(snap.Counts))
	for l := range snap.Config.Names {
		labels = append(labels, l)
	}
	for l := range snap.Counts {
		if _, named := snap.Config.Names[l]; !named {
			labels = append(labels, l)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	for _, l := range labels {
		view.CountRows = append(view.CountRows, countRow{Name: snap.Config.LabelName(l), Count: snap.Counts[l]})
	}

	return indexTmpl.Execute(w, view)
}
