package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/boiler-controller/internal/logic"
	"github.com/sweeney/boiler-controller/internal/status"
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
	"level": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
	"health": func(h logic.Health) string {
		switch h {
		case logic.Healthy:
			return "ok"
		case logic.AwaitingAck:
			return "pending"
		default:
			return "failed"
		}
	},
	"modeClass": func(m logic.Mode) string {
		switch m {
		case logic.ModeNormal:
			return "ok"
		case logic.ModeDegraded, logic.ModeRescue:
			return "pending"
		case logic.ModeEmergencyStop:
			return "failed"
		default:
			return "idle"
		}
	},
	"valve": status.ValveState,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>Boiler Controller</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.pending { color: orange; font-weight: bold; }
.failed { color: red; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Boiler Controller</h1>

<h2>Control</h2>
<table>
<tr><th>Mode</th><td id="mode" class="{{modeClass .Controller.Mode}}">{{.Controller.Mode}}</td></tr>
{{if .Started}}<tr><th>Water level</th><td id="water">{{level .Controller.WaterLevel}} L</td></tr>
<tr><th>Steam output</th><td id="steam">{{level .Controller.SteamLevel}} L/s</td></tr>
{{if eq .Controller.Mode.String "RESCUE"}}<tr><th>Estimated level</th><td id="estimate">{{level .Controller.EstimatedLevel}} L</td></tr>{{end}}
<tr><th>Last cycle</th><td>{{.LastCycle.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Readings</th><td class="idle">no cycle yet</td></tr>{{end}}
<tr><th>Valve</th><td id="valve">{{valve .Controller.ValveOpen}}</td></tr>
<tr><th>Alarm</th><td id="alarm" class="{{if .AlarmOn}}failed{{else}}idle{{end}}">{{if .AlarmOn}}ON{{else}}off{{end}}</td></tr>
</table>

<h2>Devices</h2>
<table>
<tr><th>Level sensor</th><td class="{{health .Controller.LevelSensor}}">{{.Controller.LevelSensor}}</td></tr>
<tr><th>Steam sensor</th><td class="{{health .Controller.SteamSensor}}">{{.Controller.SteamSensor}}</td></tr>
</table>
<table id="pumps">
<tr><th>Pump</th><th>State</th><th>Pump health</th><th>Controller health</th></tr>
{{range $i, $p := .Controller.Pumps}}<tr><td>{{$i}}</td><td>{{if $p.Open}}open{{else}}closed{{end}}</td><td class="{{health $p.Pump}}">{{$p.Pump}}</td><td class="{{health $p.Controller}}">{{$p.Controller}}</td></tr>
{{end}}</table>

<h2>Counts</h2>
<table>
<tr><th>Cycles</th><td>{{.Controller.Counts.Cycles}}</td></tr>
<tr><th>Transmission failures</th><td>{{.Controller.Counts.TransmissionFailures}}</td></tr>
<tr><th>Failures detected</th><td>{{.Controller.Counts.Detections}}</td></tr>
<tr><th>Repairs</th><td>{{.Controller.Counts.Repairs}}</td></tr>
<tr><th>Rejected messages</th><td>{{.Rejected}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .MQTTBuffered}}<tr><th>Buffered</th><td>{{.MQTTBuffered}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Run</th><td>{{.RunID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Cycle</th><td>{{.Config.CycleMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Alarm pin</th><td>{{if lt .Config.AlarmPin 0}}disabled{{else}}{{.Config.AlarmPin}}{{end}}</td></tr>
<tr><th>Journal</th><td>{{if .Config.Journal}}{{.Config.Journal}}{{else}}disabled{{end}}</td></tr>
<tr><th>Boiler</th><td>{{.Config.Boiler.Capacity}} L, {{.Config.Boiler.Pumps}} x {{.Config.Boiler.PumpCapacity}} L/s, normal {{.Config.Boiler.MinNormalLevel}}-{{.Config.Boiler.MaxNormalLevel}}, limits {{.Config.Boiler.MinLimitLevel}}-{{.Config.Boiler.MaxLimitLevel}}</td></tr>
</table>

<p><a href="/index.json">JSON</a>{{if .Config.Journal}} | <a href="/history.json">History</a>{{end}}</p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	refresh := snap.Config.CycleMs / 1000
	if refresh < 1 {
		refresh = 1
	}
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Refresh int64
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Refresh:  refresh,
	}
	indexTmpl.Execute(w, data)
}
