package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keeperlabs/rebalancer/internal/analyzer"
	"github.com/keeperlabs/rebalancer/internal/engine"
	"github.com/keeperlabs/rebalancer/internal/logger"
	"github.com/keeperlabs/rebalancer/internal/registry"
	"github.com/keeperlabs/rebalancer/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the user-facing queries, the scheduler-facing trigger
// surface, and the persisted sweep history over HTTP.
type WebServer struct {
	router *mux.Router
	engine *engine.Engine
	port   string
}

// NewWebServer creates a server bound to an engine.
func NewWebServer(port string, eng *engine.Engine) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		engine: eng,
		port:   port,
	}
	server.setupRoutes()
	return server
}

func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/users", ws.handleMembers).Methods("GET")
	api.HandleFunc("/users/{addr}/portfolio", ws.handlePortfolio).Methods("GET")
	api.HandleFunc("/users/{addr}/allocation", ws.handleAllocation).Methods("GET")
	api.HandleFunc("/users/{addr}/drift", ws.handleDrift).Methods("GET")
	api.HandleFunc("/sweeps", ws.handleSweeps).Methods("GET")
	api.HandleFunc("/receipts", ws.handleReceipts).Methods("GET")
	api.HandleFunc("/keeper/check", ws.handleKeeperCheck).Methods("GET")
	api.HandleFunc("/keeper/run", ws.handleKeeperRun).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"members":   len(ws.engine.Members()),
	}
	if err := state.TestDBConnection(); err != nil {
		health["database"] = "unavailable"
	} else {
		health["database"] = "connected"
	}
	ws.writeJSON(w, http.StatusOK, health)
}

func (ws *WebServer) handleMembers(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"members": ws.engine.Members(),
	})
}

func (ws *WebServer) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	portfolio, ok := ws.engine.GetPortfolio(addr)
	if !ok {
		ws.writeError(w, http.StatusNotFound, "no portfolio for "+addr)
		return
	}
	ws.writeJSON(w, http.StatusOK, portfolio)
}

func (ws *WebServer) handleAllocation(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	entries, err := ws.engine.GetAllocation(addr)
	if err != nil {
		if errors.Is(err, registry.ErrAllocationNotSet) {
			ws.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		ws.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    addr,
		"entries": entries,
	})
}

func (ws *WebServer) handleDrift(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	assessment, err := ws.engine.Assessment(addr)
	if err != nil {
		if errors.Is(err, registry.ErrAllocationNotSet) || errors.Is(err, analyzer.ErrInvalidPortfolio) {
			ws.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		ws.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":              addr,
		"needs_rebalancing": assessment.NeedsRebalancing(),
		"assessment":        assessment,
	})
}

func (ws *WebServer) handleSweeps(w http.ResponseWriter, r *http.Request) {
	sweeps, err := state.GetRecentSweeps(parseLimit(r))
	if err != nil {
		ws.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{"sweeps": sweeps})
}

func (ws *WebServer) handleReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := state.GetRecentReceipts(parseLimit(r))
	if err != nil {
		ws.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": receipts})
}

func (ws *WebServer) handleKeeperCheck(w http.ResponseWriter, r *http.Request) {
	needed, err := ws.engine.CheckTriggerNeeded()
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{"trigger_needed": needed})
}

func (ws *WebServer) handleKeeperRun(w http.ResponseWriter, r *http.Request) {
	snapshot, err := ws.engine.RunTrigger()
	if err != nil {
		if errors.Is(err, engine.ErrTriggerNotNeeded) {
			ws.writeError(w, http.StatusConflict, err.Error())
			return
		}
		ws.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, snapshot)
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, status int, message string) {
	ws.writeJSON(w, status, map[string]string{"error": message})
}

func parseLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			return limit
		}
	}
	return 20
}

func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("duration", time.Since(start).String()).
			Msg("Request handled")
	})
}
