// Package server exposes the HTTP API, the web UI and the event WebSocket.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/core"
	"wifihid-agent/internal/scheduler"
	"wifihid-agent/internal/storage"
)

// CommandHandler defines the interface for handling client commands.
type CommandHandler interface {
	Handle(msg Message, hub *Hub)
}

// Options are the listener settings from the config file.
type Options struct {
	Port           string
	StaticFilesDir string
	AllowedOrigins []string
	AuthUser       string
	AuthPassword   string
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub          *Hub
	handler      CommandHandler
	requests     core.Submitter
	store        *storage.Store
	state        *core.State
	eventBus     *core.EventBus
	getSchedules func() []scheduler.Schedule
	getMacros    func() ([]string, error)

	opts       Options
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates a new server instance. getSchedules and getMacros may be nil.
func NewServer(requests core.Submitter, store *storage.Store, state *core.State, eb *core.EventBus, getSchedules func() []scheduler.Schedule, getMacros func() ([]string, error), opts Options) *Server {
	s := &Server{
		Hub:          NewHub(),
		requests:     requests,
		store:        store,
		state:        state,
		eventBus:     eb,
		getSchedules: getSchedules,
		getMacros:    getMacros,
		opts:         opts,
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.opts.AllowedOrigins) == 0 {
				log.Warn("[Server] WebSocket CheckOrigin is disabled.")
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.opts.AllowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			log.Printf("[Server] WebSocket connection blocked: Origin '%s' not in allowed list.", origin)
			return false
		},
	}

	s.httpServer = &http.Server{
		Addr:              ":" + opts.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetHandler sets the handler for incoming WebSocket messages.
func (s *Server) SetHandler(h CommandHandler) {
	s.handler = h
}

// Handler returns the routed and authenticated HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/command", s.handleCommand)
	mux.HandleFunc("POST /api/script", s.handleScript)
	mux.HandleFunc("GET /api/jiggler", s.handleJiggler)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /api/scripts", s.handleListScripts)
	mux.HandleFunc("POST /api/scripts", s.handleSaveScript)
	mux.HandleFunc("POST /api/scripts/load", s.handleLoadScript)
	mux.HandleFunc("POST /api/scripts/delete", s.handleDeleteScript)
	mux.HandleFunc("POST /api/scripts/run", s.handleRunScript)

	mux.HandleFunc("GET /api/quickactions", s.handleListQuickActions)
	mux.HandleFunc("POST /api/quickactions", s.handleSaveQuickAction)
	mux.HandleFunc("POST /api/quickactions/delete", s.handleDeleteQuickAction)
	mux.HandleFunc("POST /api/quickactions/reorder", s.handleReorderQuickActions)
	mux.HandleFunc("GET /api/quickscripts", s.handleQuickScript)

	mux.HandleFunc("GET /api/customos", s.handleListCustomOS)
	mux.HandleFunc("POST /api/customos", s.handleAddCustomOS)
	mux.HandleFunc("POST /api/customos/delete", s.handleDeleteCustomOS)

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/", http.FileServer(http.Dir(s.opts.StaticFilesDir)))

	return s.basicAuth(mux)
}

// basicAuth guards everything except /health when credentials are configured.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	if s.opts.AuthUser == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.opts.AuthUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.opts.AuthPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="wifihid"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves HTTP and the WebSocket hub until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	go s.Hub.Run(ctx)
	go s.forwardEvents(ctx)

	errc := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on http://localhost:%s", s.opts.Port)
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// forwardEvents relays bus events to WebSocket clients.
func (s *Server) forwardEvents(ctx context.Context) {
	if s.eventBus == nil {
		return
	}
	types := make([]core.EventType, 0, len(forwardedEvents))
	for t := range forwardedEvents {
		types = append(types, t)
	}
	sub := s.eventBus.Subscribe(types...)
	defer s.eventBus.Unsubscribe(sub, types...)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			s.Hub.Broadcast(NewMessage(forwardedEvents[ev.Type], ev.Payload))
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, nil)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] WebSocket upgrade error: %v", err)
		return
	}

	// Initial snapshot for a freshly loaded UI.
	_ = conn.WriteJSON(NewMessage("status", s.statusPayload()))
	if s.getMacros != nil {
		if macros, err := s.getMacros(); err == nil {
			_ = conn.WriteJSON(NewMessage("macro_list", macros))
		}
	}
	_ = conn.WriteJSON(NewMessage("macro_status", map[string]string{"running": s.state.Clone().RunningMacro}))
	if s.getSchedules != nil {
		_ = conn.WriteJSON(NewMessage("schedule_list", s.getSchedules()))
	}

	if !s.Hub.add(conn) {
		conn.Close()
		return
	}
	defer s.Hub.remove(conn)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if s.handler != nil {
			s.handler.Handle(Message{Raw: msgBytes}, s.Hub)
		}
	}
}
