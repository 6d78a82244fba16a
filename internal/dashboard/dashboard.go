// Package dashboard serves an advisory, websocket-pushed live view of a
// Scan run's progress: running success rate, per-guarantee failure counts,
// and elapsed time. It is purely observational; nothing here feeds back
// into the scheduler's verdict.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"

	"scan/internal/scan"
)

var upgrader = websocket.Upgrader{}

const (
	writeWait      = 1 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	pubResolution  = 200 * time.Millisecond
	pingResolution = 500 * time.Millisecond
)

// Server serves a single progress page over a single websocket per client,
// fed by a stream of scan.Snapshot values pushed from the scheduler's
// estimator goroutine.
type Server struct {
	addr     string
	updates  <-chan scan.Snapshot
	lastSeen scan.Snapshot
}

// NewServer builds a dashboard bound to the given live snapshot stream.
func NewServer(addr string, updates <-chan scan.Snapshot) *Server {
	return &Server{addr: addr, updates: updates}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.serveIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.serveWebsocket)
	return r
}

// Serve blocks, running the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("dashboard: serve: %w", err)
	}
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head><title>scan progress</title></head>
<body>
<h1>statistical model checking progress</h1>
<pre id="snapshot">waiting for data...</pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (evt) => {
  document.getElementById("snapshot").textContent = JSON.stringify(JSON.parse(evt.data), null, 2);
};
</script>
</body>
</html>`

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	renderIndex(w)
}

func renderIndex(w io.Writer) {
	t := template.Must(template.New("index.html").Parse(indexTemplate))
	_ = t.Execute(w, nil)
}

// serveWebsocket streams Snapshots to one connected client, throttled to
// pubResolution, alongside a ping/pong liveness check.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer closeWebsocket(ws)
	s.publish(r.Context(), ws)
}

func closeWebsocket(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()
}

func (s *Server) publish(ctx context.Context, ws *websocket.Conn) {
	last := time.Now()
	pubCtx, cancelPub := context.WithCancel(ctx)
	defer cancelPub()
	pinger := channerics.NewTicker(pubCtx.Done(), pingResolution)
	lastPong := time.Now()

	pong := make(chan struct{})
	defer close(pong)
	ws.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		case <-pubCtx.Done():
		}
		return nil
	})

	go func() {
		for {
			select {
			case <-pubCtx.Done():
				return
			default:
				if _, _, err := ws.ReadMessage(); err != nil {
					cancelPub()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-pubCtx.Done():
			return
		case <-pinger:
			if time.Since(lastPong) > pingResolution*2 {
				return
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-pong:
			lastPong = time.Now()
		case snap, ok := <-s.updates:
			if !ok {
				return
			}
			s.lastSeen = snap
			if time.Since(last) < pubResolution && !snap.Done {
				continue
			}
			last = time.Now()
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
