package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerline/advisor-plane/internal/config"
	"github.com/ledgerline/advisor-plane/internal/events"
	"github.com/ledgerline/advisor-plane/internal/intent"
	"github.com/ledgerline/advisor-plane/internal/scan"
	"github.com/ledgerline/advisor-plane/internal/store"
	"github.com/ledgerline/advisor-plane/internal/workflows"
)

type Server struct {
	store      store.Store
	broker     Broker
	dispatches DispatchService
	scanner    Scanner
	classifier *intent.Classifier
	cfg        config.Config
}

type Broker interface {
	Publish(event events.Event)
	Subscribe(ctx context.Context, clientID string) <-chan events.Event
	SubscribeGlobal(ctx context.Context) <-chan events.Event
}

type DispatchService interface {
	StartDispatch(ctx context.Context, input workflows.DispatchInput) error
}

type Scanner interface {
	RunCycle(ctx context.Context) (*scan.Summary, error)
	State() string
}

func NewServer(st store.Store, broker Broker, dispatches DispatchService, scanner Scanner, classifier *intent.Classifier, cfg config.Config) *Server {
	return &Server{
		store:      st,
		broker:     broker,
		dispatches: dispatches,
		scanner:    scanner,
		classifier: classifier,
		cfg:        cfg,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/clients", s.listClients)
	r.Get("/clients/{id}", s.getClient)
	r.Post("/clients/{id}/dispatch", s.dispatch)
	r.Post("/clients/{id}/notes", s.addNote)
	r.Delete("/clients/{id}/notes/{noteID}", s.deleteNote)
	r.Get("/tasks", s.listTasks)
	r.Get("/tasks/{id}", s.getTask)
	r.Post("/tasks/{id}/action", s.taskAction)
	r.Get("/alerts", s.listAlerts)
	r.Post("/alerts/{id}/action", s.alertAction)
	r.Post("/alerts/scan", s.runScan)
	r.Post("/internal/events", s.ingestEvent)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method == http.MethodPost && cleanPath == "/internal/events" {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/health" || cleanPath == "/ready" || cleanPath == "/ws") {
		return true
	}
	if method == http.MethodOptions {
		return true
	}
	return false
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if _, err := s.store.ListClients(ctx); err != nil {
		subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["store"] = subsystemStatus{Status: "ok"}
	}

	if s.dispatches == nil {
		subsystems["dispatches"] = subsystemStatus{Status: "skipped"}
	} else {
		subsystems["dispatches"] = subsystemStatus{Status: "ok"}
	}
	if s.scanner == nil {
		subsystems["scan"] = subsystemStatus{Status: "skipped"}
	} else {
		subsystems["scan"] = subsystemStatus{Status: s.scanner.State()}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var event events.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(event.Type) == "" {
		http.Error(w, "event type required", http.StatusBadRequest)
		return
	}
	s.broker.Publish(event)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}
