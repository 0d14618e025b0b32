package web

// Single page with the testnet chart, a trade form and the live trade log.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Papertrade</title>
  <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-soft:#9c9c9c; --panel:#f6f6f6; }
    body { background:var(--bg); color:var(--ink); font-family:monospace; margin:2rem; }
    .panel { background:var(--panel); padding:1rem; margin-bottom:1rem; }
    .muted { color:var(--ink-soft); }
    table { width:100%; border-collapse:collapse; }
    td, th { text-align:left; padding:.25rem .5rem; }
    .rejected { color:#b00020; }
  </style>
</head>
<body>
  <h1>Papertrade</h1>
  <div class="panel">
    <select id="coin"></select>
    <input id="amount" value="1000" size="8" />
    <button onclick="trade('BUY')">BUY</button>
    <button onclick="trade('SELL')">SELL</button>
    <span id="status" class="muted"></span>
  </div>
  <div class="panel">
    <div>balance <b id="balance">-</b> shares <b id="shares">-</b> value <b id="value">-</b></div>
  </div>
  <div class="panel"><canvas id="chart" height="90"></canvas></div>
  <div class="panel">
    <table><thead><tr><th>time</th><th>coin</th><th>type</th><th>amount</th><th>price</th><th>status</th></tr></thead>
    <tbody id="trades"></tbody></table>
  </div>
<script>
const coinSel = document.getElementById('coin');
let chart;

async function loadCoins() {
  const coins = await (await fetch('/testnet/coins')).json();
  coinSel.innerHTML = coins.map(c => '<option value="' + c.id + '">' + c.name + '</option>').join('');
  coinSel.onchange = refresh;
  refresh();
}

async function refresh() {
  const coin = coinSel.value;
  const data = await (await fetch('/testnet/market_chart/' + coin + '?points=96&indicators=true')).json();
  const labels = data.prices.map(p => new Date(p.time).toLocaleTimeString());
  const prices = data.prices.map(p => Number(p.price));
  const pad = new Array(prices.length - data.ema.length).fill(null);
  const ema = pad.concat(data.ema.map(p => Number(p.value)));
  if (chart) chart.destroy();
  chart = new Chart(document.getElementById('chart'), {
    type: 'line',
    data: { labels, datasets: [
      { label: coin, data: prices, borderColor: '#111', pointRadius: 0 },
      { label: 'EMA', data: ema, borderColor: '#9c9c9c', pointRadius: 0 },
    ]},
    options: { animation: false },
  });
  const w = await (await fetch('/testnet/wallet?coin=' + coin)).json();
  document.getElementById('balance').textContent = w.balance;
  document.getElementById('shares').textContent = w.shares;
  document.getElementById('value').textContent = w.value;
}

async function trade(type) {
  const body = { coin: coinSel.value, type, amount: document.getElementById('amount').value };
  const resp = await fetch('/testnet/trade', { method: 'POST', body: JSON.stringify(body) });
  const data = await resp.json();
  document.getElementById('status').textContent = resp.ok ? 'executed' : (data.error || resp.status);
  refresh();
}

const stream = new EventSource('/testnet/trades/stream');
stream.addEventListener('trade', ev => {
  const t = JSON.parse(ev.data);
  const row = document.createElement('tr');
  if (t.status === 'rejected') row.className = 'rejected';
  row.innerHTML = [new Date(t.timestamp).toLocaleTimeString(), t.symbol, t.type, t.amount,
    t.price_at_execution, t.status + (t.reason ? ' (' + t.reason + ')' : '')].map(v => '<td>' + v + '</td>').join('');
  document.getElementById('trades').prepend(row);
});

loadCoins();
setInterval(refresh, 30000);
</script>
</body>
</html>
`
