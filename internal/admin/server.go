// Package admin exposes the operator control surface: an HTTP API for state
// snapshots, forced disconnects, bans, and chat-log review, plus the NATS
// command consumer that lets cmd/adminctl drive the same operations from the
// command line. The admin listener binds separately from the client-facing
// WebSocket port and is expected to sit behind network-level access control.
package admin

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/walletchat/relay/internal/messaging"
	"github.com/walletchat/relay/internal/metrics"
	"github.com/walletchat/relay/internal/relay"
)

// defaultChatLogLimit bounds chat-log responses when no limit is given.
const defaultChatLogLimit = 200

// Server is the admin HTTP server.
type Server struct {
	svc        *relay.Service
	httpServer *http.Server
}

// NewServer creates an admin server for the given relay service, listening on
// addr.
func NewServer(addr string, svc *relay.Service) *Server {
	s := &Server{svc: svc}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/snapshot", s.handleSnapshot)
	mux.HandleFunc("/admin/disconnect", s.handleDisconnect)
	mux.HandleFunc("/admin/ban", s.handleBan)
	mux.HandleFunc("/admin/unban", s.handleUnban)
	mux.HandleFunc("/admin/chatlogs", s.handleChatLogs)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	log.Printf("[admin] listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the admin listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleSnapshot returns the relay's current counters.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

type disconnectRequest struct {
	UserID string `json:"user_id"`
}

// handleDisconnect forcibly terminates a user's connection.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	found := s.svc.ForceDisconnect(r.Context(), req.UserID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      req.UserID,
		"disconnected": found,
	})
}

type banRequest struct {
	UserID          string `json:"user_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason"`
}

// handleBan applies an operator ban.
func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DurationMinutes <= 0 {
		http.Error(w, "duration_minutes must be positive", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "admin_ban"
	}

	until, err := s.svc.Ban(r.Context(), req.UserID, time.Duration(req.DurationMinutes)*time.Minute, req.Reason)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": req.UserID,
		"until":   until.UTC().Format(time.RFC3339),
	})
}

type unbanRequest struct {
	UserID string `json:"user_id"`
}

// handleUnban lifts a ban.
func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req unbanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.svc.Unban(r.Context(), req.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": req.UserID, "status": "unbanned"})
}

// handleChatLogs returns the stored messages of a room for moderation review.
func (s *Server) handleChatLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	msgs, err := s.svc.ChatLogs(r.Context(), roomID, defaultChatLogLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type logEntry struct {
		ID        string `json:"id"`
		SenderID  string `json:"sender_id"`
		Content   string `json:"content"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]logEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, logEntry{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID,
		"messages": out,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[admin] write response: %v", err)
	}
}

// ConsumeCommands subscribes to the NATS moderation command subject and
// applies each command to the relay. Unknown commands are logged and dropped.
func ConsumeCommands(nc *messaging.Client, svc *relay.Service) error {
	return nc.SubscribeAdminCommands(func(cmd messaging.AdminCommand) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		switch cmd.Command {
		case "disconnect":
			found := svc.ForceDisconnect(ctx, cmd.UserID)
			log.Printf("[admin] command disconnect user=%s found=%v", cmd.UserID, found)
		case "ban":
			minutes := cmd.Duration
			if minutes <= 0 {
				minutes = 15
			}
			reason := cmd.Reason
			if reason == "" {
				reason = "admin_ban"
			}
			if _, err := svc.Ban(ctx, cmd.UserID, time.Duration(minutes)*time.Minute, reason); err != nil {
				log.Printf("[admin] command ban user=%s: %v", cmd.UserID, err)
				return
			}
			log.Printf("[admin] command ban user=%s duration=%dm", cmd.UserID, minutes)
		case "unban":
			if err := svc.Unban(ctx, cmd.UserID); err != nil {
				log.Printf("[admin] command unban user=%s: %v", cmd.UserID, err)
				return
			}
			log.Printf("[admin] command unban user=%s", cmd.UserID)
		default:
			log.Printf("[admin] unknown command %q", cmd.Command)
		}
	})
}
