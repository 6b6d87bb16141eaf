package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/medscrub/internal/events"
	"github.com/raaihank/medscrub/internal/scrub"
)

// ScrubRequest is the POST /v1/scrub payload.
type ScrubRequest struct {
	Text string `json:"text"`
	// SessionSalt ties placeholders across multiple requests of one
	// session. Omitted: a fresh salt is generated per request.
	SessionSalt string `json:"session_salt,omitempty"`
	// IncludeReplacements echoes the original->placeholder map back to
	// the caller. Off by default since the map contains the PII.
	IncludeReplacements bool `json:"include_replacements,omitempty"`
}

// ScrubResponse is the POST /v1/scrub response.
type ScrubResponse struct {
	*scrub.ScrubResult
	Replacements map[string]string `json:"replacements,omitempty"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// handleScrub runs the de-identification pipeline over the request text.
func (s *Server) handleScrub(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	var req ScrubRequest
	// Input size ceiling plus headroom for the JSON envelope.
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.Scrub.MaxInputSize)*2+4096)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON body: %v", err), 2000)
		return
	}

	salt := req.SessionSalt
	if salt == "" {
		var err error
		if salt, err = scrub.NewSessionSalt(); err != nil {
			log.Error("failed to generate session salt", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "failed to generate session salt", 2998)
			return
		}
	}

	result, err := s.scrubber.ScrubWithSalt(r.Context(), req.Text, salt)
	if err != nil {
		var scrubErr *scrub.ScrubError
		if errors.As(err, &scrubErr) {
			status := http.StatusBadRequest
			if errors.Is(err, scrub.ErrInputTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeError(w, status, scrubErr.Type, scrubErr.Message, scrubErr.Code)
			return
		}
		log.Error("scrub failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "scrub failed", 2999)
		return
	}

	atomic.AddInt64(&s.scrubCount, 1)
	log.Info("document scrubbed",
		zap.Int("count", result.Count),
		zap.Float64("confidence", result.Confidence),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("duration", result.Summary.Duration),
	)

	byCategory := make(map[string]int, len(result.Summary.ByCategory))
	for t, n := range result.Summary.ByCategory {
		byCategory[string(t)] = n
	}
	s.hub.BroadcastEvent(events.Event{
		Type:      events.EventTypeScrubSummary,
		Timestamp: time.Now(),
		Data: events.ScrubSummaryEvent{
			Count:      result.Count,
			Confidence: result.Confidence,
			Warnings:   len(result.Warnings),
			ByCategory: byCategory,
			DurationMs: result.Summary.Duration.Milliseconds(),
		},
	})

	if s.auditStore != nil {
		// Persist off the request path; a sink outage must not fail the scrub.
		go func(salt string, res *scrub.ScrubResult) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.auditStore.RecordScrub(ctx, salt, res); err != nil {
				s.logger.Error("failed to persist audit record", zap.Error(err))
			}
		}(salt, result)
	}

	resp := ScrubResponse{ScrubResult: result}
	if req.IncludeReplacements {
		resp.Replacements = result.Replacements
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"medscrub",
		"version":"0.1.0",
		"scrub_enabled":%t,
		"statistical_enabled":%t,
		"context_enabled":%t
	}`, s.config.Scrub.Enabled, s.config.Scrub.EnableStatistical, s.config.Scrub.EnableContext)
}

// handleStats reports runtime counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"total_scrubs":   s.totalScrubs(),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"events":         s.hub.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}

func writeError(w http.ResponseWriter, status int, errType, message string, code int) {
	var resp errorResponse
	resp.Error.Type = errType
	resp.Error.Message = message
	resp.Error.Code = code

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
