// pkg/api/server.go

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/obsforge/stackupgrade/pkg/backup"
	"github.com/obsforge/stackupgrade/pkg/history"
	"github.com/obsforge/stackupgrade/pkg/state"
)

// SystemStatus is the /api/status summary.
type SystemStatus struct {
	UpgradeID        string              `json:"upgrade_id,omitempty"`
	Status           state.SessionStatus `json:"status"`
	Mode             string              `json:"mode,omitempty"`
	CurrentPhase     string              `json:"current_phase,omitempty"`
	CurrentComponent string              `json:"current_component,omitempty"`
	Components       int                 `json:"components"`
	Errors           int                 `json:"errors"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// APIServer serves the read-only upgrade status API. It never mutates
// state; all writes go through the CLI pipeline.
type APIServer struct {
	store   *state.Store
	archive *history.DB
	backups *backup.Manager
	router  *mux.Router
}

// NewAPIServer creates the server. archive and backups may be nil; their
// endpoints then report 404.
func NewAPIServer(store *state.Store, archive *history.DB, backups *backup.Manager) *APIServer {
	s := &APIServer{
		store:   store,
		archive: archive,
		backups: backups,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("/api/health", s.getHealth).Methods("GET")
	s.router.HandleFunc("/api/status", s.getStatus).Methods("GET")
	s.router.HandleFunc("/api/components", s.getComponents).Methods("GET")
	s.router.HandleFunc("/api/components/{name}", s.getComponent).Methods("GET")
	s.router.HandleFunc("/api/components/{name}/history", s.getComponentHistory).Methods("GET")
	s.router.HandleFunc("/api/history", s.getHistory).Methods("GET")
	s.router.HandleFunc("/api/history/{id}", s.getHistorySession).Methods("GET")
	s.router.HandleFunc("/api/backups", s.getBackups).Methods("GET")
}

// Router exposes the handler for the lifecycle server.
func (s *APIServer) Router() http.Handler {
	return s.router
}

func (s *APIServer) encodeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *APIServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSON(w, map[string]string{"status": "ok"})
}

func (s *APIServer) getStatus(w http.ResponseWriter, _ *http.Request) {
	session, err := s.store.Read()
	if err != nil {
		log.Printf("Error reading state: %v", err)
		http.Error(w, "State unreadable", http.StatusInternalServerError)

		return
	}

	s.encodeJSON(w, SystemStatus{
		UpgradeID:        session.UpgradeID,
		Status:           session.Status,
		Mode:             session.Mode,
		CurrentPhase:     session.CurrentPhase,
		CurrentComponent: session.CurrentComponent,
		Components:       len(session.Components),
		Errors:           len(session.Errors),
		UpdatedAt:        session.UpdatedAt,
	})
}

func (s *APIServer) getComponents(w http.ResponseWriter, _ *http.Request) {
	session, err := s.store.Read()
	if err != nil {
		http.Error(w, "State unreadable", http.StatusInternalServerError)
		return
	}

	s.encodeJSON(w, session.Components)
}

func (s *APIServer) getComponent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	session, err := s.store.Read()
	if err != nil {
		http.Error(w, "State unreadable", http.StatusInternalServerError)
		return
	}

	rec, ok := session.Components[name]
	if !ok {
		http.Error(w, "Component not found", http.StatusNotFound)
		return
	}

	s.encodeJSON(w, rec)
}

func (s *APIServer) getComponentHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "History not configured", http.StatusNotFound)
		return
	}

	name := mux.Vars(r)["name"]

	results, err := s.archive.ComponentHistory(name, 0)
	if err != nil {
		log.Printf("Error querying component history: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.encodeJSON(w, results)
}

func (s *APIServer) getHistory(w http.ResponseWriter, _ *http.Request) {
	if s.archive == nil {
		http.Error(w, "History not configured", http.StatusNotFound)
		return
	}

	sessions, err := s.archive.ListSessions(0)
	if err != nil {
		log.Printf("Error querying history: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.encodeJSON(w, sessions)
}

func (s *APIServer) getHistorySession(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "History not configured", http.StatusNotFound)
		return
	}

	id := mux.Vars(r)["id"]

	summary, results, err := s.archive.GetSession(id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	s.encodeJSON(w, map[string]interface{}{
		"session":    summary,
		"components": results,
	})
}

func (s *APIServer) getBackups(w http.ResponseWriter, _ *http.Request) {
	if s.backups == nil {
		http.Error(w, "Backups not configured", http.StatusNotFound)
		return
	}

	metas, err := s.backups.List()
	if err != nil {
		log.Printf("Error listing backups: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.encodeJSON(w, metas)
}
