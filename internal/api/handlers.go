package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/FitPulse/internal/messaging"
	"github.com/BTreeMap/FitPulse/internal/models"
)

// sendRequest is the body of POST /send.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// healthHandler provides a health check endpoint for monitoring and load balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.engine != nil {
		healthData["scheduled_jobs"] = len(s.engine.Snapshot())
	}

	writeJSONResponse(w, http.StatusOK, healthData)
}

// schedulerStatusHandler handles GET /scheduler/status. It reports every
// registered job with its next fire time and whether a run is in flight.
func (s *Server) schedulerStatusHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.schedulerStatusHandler: processing status request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	jobs := s.engine.Snapshot()
	slog.Info("Server.schedulerStatusHandler: returning jobs", "count", len(jobs))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	}))
}

// sendHandler handles POST /send for operator-initiated messages. Long bodies
// are chunked the same way scheduled deliveries are.
func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	slog.Debug("Server.sendHandler: processing send request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		slog.Warn("Server.sendHandler: method not allowed", "method", r.Method)
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}

	canonicalTo, err := s.msgService.ValidateAndCanonicalizeRecipient(req.To)
	if err != nil {
		slog.Warn("Server.sendHandler: recipient validation failed", "error", err, "original_to", req.To)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid recipient phone number: "+err.Error()))
		return
	}
	if req.Body == "" {
		slog.Warn("Server.sendHandler: empty message body", "to", canonicalTo)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Message body must not be empty"))
		return
	}

	if err := messaging.SendChunked(r.Context(), s.msgService, canonicalTo, req.Body); err != nil {
		slog.Error("Server.sendHandler: failed to send message", "error", err, "to", canonicalTo)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.sendHandler: message sent", "to", canonicalTo)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent", nil))
}

// webhookHandler handles POST /webhook/twilio by delegating to the mounted
// transport webhook.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	s.webhook(w, r)
}
