package web

import (
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/washer-notify/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"since":      formatElapsed,
	"phaseClass": phaseClass,
	"watts": func(w float64) string {
		return strconv.FormatFloat(w, 'f', 1, 64) + " W"
	},
}).Parse(indexHTML))

// formatElapsed renders d in whole seconds, largest unit first, e.g. "2d 3h 0m 5s".
// Leading zero units are omitted.
func formatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{secs / 86400, "d"},
		{secs / 3600 % 24, "h"},
		{secs / 60 % 60, "m"},
		{secs % 60, "s"},
	}
	var b strings.Builder
	for i, p := range parts {
		if b.Len() == 0 && p.n == 0 && i < len(parts)-1 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(p.n, 10))
		b.WriteString(p.unit)
	}
	return b.String()
}

func phaseClass(p string) string {
	switch p {
	case "WASHING", "DRAINING", "IDLE":
		return strings.ToLower(p)
	}
	return "unknown"
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Washer</title>
<style>
:root { --ok: #2a7; --warn: #d90; --bad: #c33; --dim: #999; }
body { font: 14px/1.5 system-ui, sans-serif; max-width: 34em; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1em; text-transform: uppercase; letter-spacing: 0.05em; color: #555; margin: 1.5em 0 0.3em; }
table { width: 100%; border-spacing: 0; }
th, td { padding: 3px 6px; text-align: left; vertical-align: top; }
th { font-weight: normal; color: #555; width: 45%; }
tr:nth-child(odd) td, tr:nth-child(odd) th { background: #f6f6f6; }
.washing { color: var(--ok); font-weight: 600; }
.draining { color: var(--warn); font-weight: 600; }
.idle { color: var(--dim); }
.unknown, .error, .down { color: var(--bad); }
.up { color: var(--ok); }
#live { display: inline-block; width: 0.6em; height: 0.6em; margin-left: 0.4em; border-radius: 50%; background: var(--warn); }
#live.on { background: var(--ok); }
#live.off { background: var(--bad); }
</style>
</head>
<body>
<h1>Washer<span id="live" title="connecting"></span></h1>

<h2>Cycle</h2>
<table>
<tr><th>Phase</th><td id="phase" class="{{phaseClass (printf "%s" .Phase)}}">{{printf "%s" .Phase}}</td></tr>
<tr><th>Waiting to notify</th><td id="registered">{{if .Registered}}yes{{else}}no{{end}}</td></tr>
<tr><th>Power</th><td id="power">{{if .LastPollAt.IsZero}}-{{else}}{{watts .LastPower}}{{end}}</td></tr>
{{if .LastPollError}}<tr><th>Last poll error</th><td class="error">{{.LastPollError}}</td></tr>{{end}}
<tr><th>Poll errors</th><td>{{.PollErrors}}</td></tr>
</table>

<h2>Links</h2>
<table>
<tr><th>Meter</th><td>{{.Config.DeviceKind}}</td></tr>
{{if .MQTTConnected}}<tr><th>MQTT</th><td class="up">up</td></tr>{{else}}<tr><th>MQTT</th><td class="down">down</td></tr>{{end}}
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}none{{end}}</td></tr>
</table>

<h2>Transitions</h2>
<table>
<tr><th>Registered</th><td>{{.Counts.Registered}}</td></tr>
<tr><th>Cycle started</th><td>{{.Counts.CycleStarted}}</td></tr>
<tr><th>Drain started</th><td>{{.Counts.DrainStarted}}</td></tr>
<tr><th>Cycle resumed</th><td>{{.Counts.CycleResumed}}</td></tr>
<tr><th>Cycle finished</th><td>{{.Counts.CycleFinished}}</td></tr>
<tr><th>Notify failed</th><td>{{.Counts.NotifyFailed}}</td></tr>
</table>

<h2>Daemon</h2>
<table>
<tr><th>Running for</th><td>{{since .Elapsed}} (since {{.StartTime.UTC.Format "Jan 2 15:04 MST"}})</td></tr>
<tr><th>Thresholds</th><td>on &gt; {{.Config.OnWatts}} W, off &lt; {{.Config.OffWatts}} W</td></tr>
<tr><th>Finish after</th><td>{{.Config.DebounceMs}} ms below off</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms (idle {{.Config.IdlePollMs}}ms)</td></tr>
<tr><th>Heartbeat</th><td>{{with .Config.HeartbeatMs}}every {{.}} ms{{else}}off{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p>Raw: <a href="/index.json">index.json</a></p>
<script>
var live = document.getElementById("live");
var fields = {
  phase: document.getElementById("phase"),
  registered: document.getElementById("registered"),
  power: document.getElementById("power")
};

function render(st) {
  fields.phase.textContent = st.phase;
  fields.phase.className = st.phase.toLowerCase();
  fields.registered.textContent = st.registered ? "yes" : "no";
  if (st.power) {
    fields.power.textContent = st.power.watts.toFixed(1) + " W";
  }
}

function connectLive() {
  var scheme = location.protocol === "https:" ? "wss" : "ws";
  var sock = new WebSocket(scheme + "://" + location.host + "/ws");
  sock.onopen = function () { live.className = "on"; live.title = "live"; };
  sock.onmessage = function (msg) {
    try { render(JSON.parse(msg.data).status); } catch (err) {}
  };
  sock.onclose = function () {
    live.className = "off";
    live.title = "reconnecting";
    setTimeout(connectLive, 5000);
  };
}
connectLive();
</script>
</body>
</html>
`

type pageData struct {
	status.Snapshot
	Elapsed time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, pageData{Snapshot: snap, Elapsed: snap.Uptime()})
}
