// Package console is the embedded HTTP transport: a self-contained operator
// page, plain-text weight and dispense endpoints, and a websocket channel
// that pushes live weight updates to the page.
package console

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"smartfeeder-go/pkg/config"
	"smartfeeder-go/pkg/log"
	"smartfeeder-go/pkg/transport"
)

const (
	// commandBuffer bounds queued commands, matching the MQTT transport.
	commandBuffer = 8

	// dispenseTimeout covers motion plus settle with ample margin.
	dispenseTimeout = 30 * time.Second

	wsWriteTimeout = 10 * time.Second
)

// listenRetryInterval paces re-listen attempts after a failed bind or a
// crashed server, matching the broker transport's reconnect cadence.
// A variable so tests can shorten it.
var listenRetryInterval = 5 * time.Second

// Server is a Transport backed by the embedded HTTP console.
type Server struct {
	addr     string
	log      *log.Logger
	commands chan transport.Command

	serverMu   sync.Mutex
	httpServer *http.Server
	running    atomic.Bool
	stopping   atomic.Bool

	weightMu   sync.RWMutex
	lastWeight string

	wsUpgrader websocket.Upgrader
	wsMu       sync.Mutex
	wsClients  map[*wsClient]struct{}
}

// New builds the console server; the listener is opened by Start.
func New(cfg config.HTTPConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New("console")
	}
	s := &Server{
		addr:       cfg.Bind,
		log:        logger,
		commands:   make(chan transport.Command, commandBuffer),
		lastWeight: "0.00",
		wsClients:  make(map[*wsClient]struct{}),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// Handler returns the route table, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/weight", s.handleWeight)
	mux.HandleFunc("/dispense", s.handleDispense)
	mux.HandleFunc("/websocket", s.handleWebSocket)
	return mux
}

// Start brings the listener up and keeps it up: a failed bind or a crashed
// server is retried on a fixed interval until Stop.
func (s *Server) Start() error {
	go s.serve()
	return nil
}

func (s *Server) serve() {
	for !s.stopping.Load() {
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			s.log.WithError(err).Warn("console listen failed, retrying in %s", listenRetryInterval)
			time.Sleep(listenRetryInterval)
			continue
		}

		srv := &http.Server{Handler: s.Handler()}
		s.serverMu.Lock()
		s.httpServer = srv
		s.serverMu.Unlock()

		s.running.Store(true)
		s.log.WithField("addr", s.addr).Info("console listening")
		err = srv.Serve(ln)
		s.running.Store(false)
		if err == http.ErrServerClosed || s.stopping.Load() {
			return
		}
		s.log.WithError(err).Warn("console server stopped, retrying in %s", listenRetryInterval)
		time.Sleep(listenRetryInterval)
	}
}

// Stop closes the listener and all websocket clients and ends the re-listen
// loop.
func (s *Server) Stop() error {
	s.stopping.Store(true)
	s.running.Store(false)
	s.wsMu.Lock()
	for c := range s.wsClients {
		c.close()
	}
	s.wsClients = make(map[*wsClient]struct{})
	s.wsMu.Unlock()

	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv != nil {
		return srv.Close()
	}
	return nil
}

// Commands returns the inbound command stream.
func (s *Server) Commands() <-chan transport.Command {
	return s.commands
}

// Connected reports whether the listener is up.
func (s *Server) Connected() bool {
	return s.running.Load()
}

// PublishWeight caches the formatted weight for GET /weight and pushes it to
// every connected websocket client.
func (s *Server) PublishWeight(grams float64) error {
	if !s.Connected() {
		return transport.ErrDisconnected
	}
	formatted := transport.FormatWeight(grams)

	s.weightMu.Lock()
	s.lastWeight = formatted
	s.weightMu.Unlock()

	s.wsMu.Lock()
	for c := range s.wsClients {
		c.send(formatted)
	}
	s.wsMu.Unlock()
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Not found")
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, indexPage)
}

func (s *Server) handleWeight(w http.ResponseWriter, r *http.Request) {
	s.weightMu.RLock()
	weight := s.lastWeight
	s.weightMu.RUnlock()
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, weight)
}

func (s *Server) handleDispense(w http.ResponseWriter, r *http.Request) {
	reply := make(chan string, 1)
	cmd := transport.Command{
		Name: transport.CommandDispense,
		Respond: func(outcome string) {
			select {
			case reply <- outcome:
			default:
			}
		},
	}

	w.Header().Set("Content-Type", "text/plain")
	select {
	case s.commands <- cmd:
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "command queue full")
		return
	}

	select {
	case outcome := <-reply:
		fmt.Fprint(w, outcome)
	case <-time.After(dispenseTimeout):
		w.WriteHeader(http.StatusGatewayTimeout)
		fmt.Fprint(w, "timed out waiting for outcome")
	case <-r.Context().Done():
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, out: make(chan string, 8), done: make(chan struct{})}
	s.wsMu.Lock()
	s.wsClients[c] = struct{}{}
	s.wsMu.Unlock()

	go c.writePump()
	go func() {
		// Reads are discarded; the read loop only detects disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.removeClient(c)
	}()
}

func (s *Server) removeClient(c *wsClient) {
	s.wsMu.Lock()
	if _, ok := s.wsClients[c]; ok {
		delete(s.wsClients, c)
		c.close()
	}
	s.wsMu.Unlock()
}

type wsClient struct {
	conn *websocket.Conn
	out  chan string
	done chan struct{}
	once sync.Once
}

func (c *wsClient) send(msg string) {
	select {
	case c.out <- msg:
	default:
		// Slow client; drop the update, the next one supersedes it.
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) writePump() {
	for {
		select {
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
