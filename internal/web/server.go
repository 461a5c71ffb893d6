package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vadiminshakov/folio/internal/domain"
	"go.uber.org/zap"
)

const (
	snapshotPollInterval = 2 * time.Second
	heartbeatInterval    = 30 * time.Second
)

type snapshotHistoryReader interface {
	SnapshotsAfter(index uint64) ([]domain.SnapshotRecord, error)
}

type latestSnapshotReader interface {
	Latest() (domain.ValuationSnapshot, bool)
}

// Server exposes the read-only dashboard: the latest snapshot as JSON and the
// snapshot history as an SSE stream.
type Server struct {
	Addr    string
	History snapshotHistoryReader
	Latest  latestSnapshotReader
	logger  *zap.Logger

	pollInterval time.Duration
}

// NewServer creates a new web server instance.
func NewServer(addr string, history snapshotHistoryReader, latest latestSnapshotReader, logger *zap.Logger) *Server {
	return &Server{
		Addr:         addr,
		History:      history,
		Latest:       latest,
		logger:       logger.Named("web"),
		pollInterval: snapshotPollInterval,
	}
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/snapshot", s.handleLatest)
	mux.HandleFunc("/snapshots/stream", s.handleSnapshotStream)

	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("dashboard listening", zap.String("addr", s.Addr))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.Latest == nil {
		http.Error(w, "tracker not available", http.StatusServiceUnavailable)
		return
	}

	snap, ok := s.Latest.Latest()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("encode snapshot", zap.Error(err))
	}
}

func (s *Server) handleSnapshotStream(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "snapshot store not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat so proxies keep connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendSnapshots := func() error {
		records, err := s.History.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: snapshot\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSnapshots(); err != nil {
		http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
		s.logger.Error("snapshot stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				s.logger.Warn("snapshot stream poll", zap.Error(err))
			}
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Folio</title>
  <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
  <style>
    body { margin:0; padding:2rem; font-family:'Space Mono',monospace; background:#fff; color:#111; }
    #app { max-width:1100px; margin:0 auto; border:3px solid #111; padding:2rem; background:#f6f6f6; box-shadow:12px 12px 0 rgba(0,0,0,.15); }
    header { display:flex; justify-content:space-between; align-items:center; }
    .status { font-size:.7rem; text-transform:uppercase; border:2px solid #111; padding:.4rem .9rem; background:#fff; }
    .totals { display:flex; gap:1rem; margin:1.5rem 0; flex-wrap:wrap; }
    .card { border:2px solid #111; background:#fff; padding:1rem; min-width:180px; }
    .card .label { font-size:.6rem; text-transform:uppercase; letter-spacing:.2em; color:#4d4d4d; }
    .card .value { font-size:1.4rem; font-weight:700; margin-top:.5rem; }
    table { width:100%; border-collapse:collapse; background:#fff; margin-top:1.5rem; font-size:.8rem; }
    th, td { border:1px solid #ccc; padding:.4rem .6rem; text-align:right; }
    th:first-child, td:first-child { text-align:left; }
    .up { color:#1b9aaa; } .down { color:#d7263d; } .na { color:#9c9c9c; }
  </style>
</head>
<body>
<div id="app">
  <header><strong>folio</strong><div id="status" class="status">Connecting…</div></header>
  <section class="totals">
    <div class="card"><div class="label">Value</div><div id="value" class="value">-</div></div>
    <div class="card"><div class="label">Invested</div><div id="invested" class="value">-</div></div>
    <div class="card"><div class="label">P&amp;L</div><div id="pnl" class="value">-</div></div>
  </section>
  <canvas id="chart" height="260"></canvas>
  <table>
    <thead><tr><th>Symbol</th><th>Quantity</th><th>Avg</th><th>Price</th><th>Value</th><th>P&amp;L %</th><th>24h %</th><th>Alloc %</th></tr></thead>
    <tbody id="rows"></tbody>
  </table>
</div>
<script>
const num = (v) => { const n = parseFloat(v); return Number.isFinite(n) ? n : 0; };
const cls = (v) => num(v) > 0 ? 'up' : (num(v) < 0 ? 'down' : '');
const chart = new Chart(document.getElementById('chart').getContext('2d'), {
  type:'line',
  data:{ labels:[], datasets:[{ label:'Portfolio value', data:[], borderColor:'#111', borderWidth:2, pointRadius:0, tension:.15 }] },
  options:{ animation:false, responsive:true }
});

function render(s){
  document.getElementById('value').textContent = num(s.total_value).toFixed(2);
  document.getElementById('invested').textContent = num(s.total_invested).toFixed(2);
  const pnl = document.getElementById('pnl');
  pnl.textContent = num(s.total_pnl).toFixed(2) + ' (' + num(s.total_pnl_percent).toFixed(2) + '%)';
  pnl.className = 'value ' + cls(s.total_pnl);

  const rows = document.getElementById('rows');
  rows.innerHTML = '';
  (s.holdings || []).forEach((h) => {
    const tr = document.createElement('tr');
    const priced = h.status === 'priced';
    const cells = [h.symbol, h.quantity, num(h.avg_cost).toFixed(2),
      priced ? num(h.current_price).toFixed(2) : 'n/a',
      priced ? num(h.current_value).toFixed(2) : 'n/a',
      priced ? num(h.pnl_percent).toFixed(2) : 'n/a',
      priced ? num(h.change_24h).toFixed(2) : 'n/a',
      priced ? num(h.allocation_percent).toFixed(1) : 'n/a'];
    cells.forEach((c, i) => {
      const td = document.createElement('td');
      td.textContent = c;
      if(!priced && i > 2){ td.className = 'na'; }
      if(priced && (i === 5 || i === 6)){ td.className = cls(c); }
      tr.appendChild(td);
    });
    rows.appendChild(tr);
  });

  chart.data.labels.push(new Date(s.taken_at).toLocaleString());
  chart.data.datasets[0].data.push(num(s.total_value));
  chart.update('none');
}

function connect(){
  const source = new EventSource('/snapshots/stream');
  document.getElementById('status').textContent = 'Live';
  source.addEventListener('snapshot', (e) => {
    try { render(JSON.parse(e.data)); } catch(err) { console.error('snapshot parse', err); }
  });
  source.addEventListener('error', () => {
    document.getElementById('status').textContent = 'Reconnecting…';
    source.close();
    setTimeout(connect, 2000);
  });
}
connect();
</script>
</body>
</html>`
