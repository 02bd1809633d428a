// Package api serves the read-only HTTP admin surface: health, rooms, users
// and the connection audit trail.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"scpchat/internal/directory"
	"scpchat/pkg/interfaces"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Directory is the read side of directory.Directory the API needs.
type Directory interface {
	Rooms() []directory.RoomInfo
	Room(id string) (directory.RoomInfo, bool)
	Users() []directory.UserInfo
	Stats() map[string]int
}

// Server exposes directory snapshots and audit events as JSON. It never
// mutates chat state.
type Server struct {
	dir       Directory
	audit     interfaces.AuditStore
	router    *http.ServeMux
	startedAt time.Time
}

// NewServer builds the API. audit may be nil when auditing is disabled.
func NewServer(dir Directory, audit interfaces.AuditStore) *Server {
	s := &Server{
		dir:       dir,
		audit:     audit,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/rooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.listRooms))))
	s.router.Handle("/api/rooms/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.getRoom))))
	s.router.Handle("/api/users", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.listUsers))))
	s.router.Handle("/api/events", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.listEvents))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ListRoomsResponse struct {
	Rooms []directory.RoomInfo `json:"rooms"`
	Count int                  `json:"count"`
}

type RoomResponse struct {
	Room directory.RoomInfo `json:"room"`
}

type ListUsersResponse struct {
	Users []directory.UserInfo `json:"users"`
	Count int                  `json:"count"`
}

type ListEventsResponse struct {
	Events []interfaces.Event `json:"events"`
	Count  int                `json:"count"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/rooms
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	rooms := s.dir.Rooms()
	s.sendJSON(w, http.StatusOK, ListRoomsResponse{Rooms: rooms, Count: len(rooms)})
}

// GET /api/rooms/{id}
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}

	roomID := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/rooms/"), "/")[0]
	if roomID == "" {
		s.sendError(w, "Room ID required", http.StatusBadRequest)
		return
	}

	info, ok := s.dir.Room(roomID)
	if !ok {
		s.sendError(w, fmt.Sprintf("Room %s not found", roomID), http.StatusNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, RoomResponse{Room: info})
}

// GET /api/users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	users := s.dir.Users()
	s.sendJSON(w, http.StatusOK, ListUsersResponse{Users: users, Count: len(users)})
}

// GET /api/events?limit=N
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	if s.audit == nil {
		s.sendError(w, interfaces.ErrAuditDisabled.Error(), http.StatusServiceUnavailable)
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.audit.RecentEvents(r.Context(), limit)
	if err != nil {
		s.sendError(w, "Failed to load events", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, ListEventsResponse{Events: events, Count: len(events)})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "disabled"
	if s.audit != nil {
		dbStatus = "healthy"
		if err := s.audit.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = fmt.Sprintf("error: %v", err)
		}
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.dir.Stats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		},
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func (s *Server) allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
