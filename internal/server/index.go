package server

import (
	"html/template"
	"net/http"
)

// indexTemplate is the single demo page. It polls /api/status and swaps the
// chart image whenever a new artifact reference arrives.
var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>WAL Benchmark</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; }
button { padding: 0.5em 1.5em; margin-right: 1em; }
#error { color: #b00; white-space: pre-wrap; }
#chart { max-width: 100%; margin-top: 1em; }
.cmd { color: #555; font-size: 0.85em; }
</style>
</head>
<body>
<h1>WAL Benchmark</h1>
<p class="cmd">benchmark: {{.BenchmarkCommand}}</p>
<p class="cmd">visualizer: {{.VisualizerCommand}}</p>
<button id="run">Run Benchmark</button>
<button id="reset">Reset</button>
<p id="state">idle</p>
<p id="error"></p>
<img id="chart" style="display:none">
<script>
let lastRef = null;
async function poll() {
	const res = await fetch('/api/status');
	const st = await res.json();
	document.getElementById('state').textContent =
		st.running ? 'running' : (st.completed ? 'completed' : (st.error ? 'failed' : 'idle'));
	document.getElementById('error').textContent = st.error || '';
	if (st.artifact_ref && st.artifact_ref !== lastRef) {
		lastRef = st.artifact_ref;
		const img = document.getElementById('chart');
		img.src = st.artifact_ref;
		img.style.display = 'block';
	}
}
document.getElementById('run').onclick = () => fetch('/api/run-benchmark', {method: 'POST'});
document.getElementById('reset').onclick = () => {
	fetch('/api/reset', {method: 'POST'});
	lastRef = null;
	document.getElementById('chart').style.display = 'none';
};
setInterval(poll, 1000);
poll();
</script>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, struct {
		BenchmarkCommand  string
		VisualizerCommand string
	}{
		BenchmarkCommand:  s.cfg.BenchmarkCommand,
		VisualizerCommand: s.cfg.VisualizerCommand,
	})
	if err != nil {
		s.logger.Error("index_render_failed", "error", err)
	}
}
