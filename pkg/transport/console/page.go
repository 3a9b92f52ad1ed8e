package console

// indexPage is the self-contained operator page. It polls /weight as a
// fallback and upgrades to live updates over the websocket when available.
const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Smart Feeder</title>
<style>
body { font-family: sans-serif; max-width: 28em; margin: 2em auto; text-align: center; }
#weight { font-size: 3em; margin: 0.5em 0; }
#status { color: #666; min-height: 1.5em; }
button { font-size: 1.2em; padding: 0.5em 2em; }
</style>
</head>
<body>
<h1>Smart Feeder</h1>
<div id="weight">--.-- g</div>
<button id="dispense">Dispense</button>
<p id="status"></p>
<script>
var weightEl = document.getElementById('weight');
var statusEl = document.getElementById('status');

function showWeight(w) { weightEl.textContent = w + ' g'; }

function poll() {
  fetch('/weight').then(function(r) { return r.text(); }).then(showWeight);
}
poll();
var timer = setInterval(poll, 30000);

try {
  var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  var ws = new WebSocket(proto + location.host + '/websocket');
  ws.onmessage = function(ev) { showWeight(ev.data); };
  ws.onopen = function() { clearInterval(timer); };
} catch (e) { /* polling continues */ }

document.getElementById('dispense').onclick = function() {
  statusEl.textContent = 'dispensing...';
  fetch('/dispense').then(function(r) { return r.text(); }).then(function(t) {
    statusEl.textContent = t;
    poll();
  });
};
</script>
</body>
</html>
`
