package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mbaylor/formrules/internal/logger"
	"github.com/mbaylor/formrules/rules"
	"github.com/mbaylor/formrules/validation"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"formsLoaded": len(s.manager.ListForms()),
	})
}

// Create rule set handler
func (s *Server) handleCreateRuleSet(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formId")

	var req CreateRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Document) == 0 {
		respondError(w, http.StatusBadRequest, "document is required", nil)
		return
	}

	rs := &rules.RuleSet{
		ID:       uuid.NewString(),
		FormID:   formID,
		Name:     req.Name,
		Document: req.Document,
		Active:   true,
	}
	if err := s.store.Add(rs); err != nil {
		respondError(w, http.StatusBadRequest, "failed to store rule set", err)
		return
	}
	if err := s.manager.ReloadForm(formID, req.Document); err != nil {
		respondError(w, http.StatusBadRequest, "failed to compile rule set", err)
		return
	}

	respondJSON(w, http.StatusCreated, toRuleSetResponse(rs))
}

// Get rule set handler
func (s *Server) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formId")

	rs, err := s.store.GetActiveByForm(formID)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule set not found", err)
		return
	}

	respondJSON(w, http.StatusOK, toRuleSetResponse(rs))
}

// Create session handler
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.FormID == "" {
		respondError(w, http.StatusBadRequest, "formId is required", nil)
		return
	}

	sess, result, err := s.manager.CreateSession(req.FormID, req.Values)
	if err != nil {
		respondError(w, http.StatusNotFound, "form not found", err)
		return
	}

	state, err := sess.MarshalState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render state", err)
		return
	}

	respondJSON(w, http.StatusCreated, SessionResponse{
		ID:        sess.ID,
		FormID:    sess.FormID,
		CreatedAt: sess.CreatedAt,
		Pass:      result,
		State:     state,
	})
}

// Field change handler
func (s *Server) handleFieldChange(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req FieldChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Field == "" {
		respondError(w, http.StatusBadRequest, "field is required", nil)
		return
	}

	start := time.Now()
	result, err := s.manager.ApplyFieldChange(sessionID, req.Field, req.Value)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found", err)
		return
	}

	if result.Cycle != nil {
		logger.Logger.Warn("evaluation pass reported a rule cycle",
			"session", sessionID, "rules", result.Cycle.Rules)
	}

	sess, err := s.manager.Session(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found", err)
		return
	}
	state, err := sess.MarshalState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render state", err)
		return
	}

	respondJSON(w, http.StatusOK, FieldChangeResponse{
		Pass:           result,
		State:          state,
		EvaluationTime: time.Since(start).String(),
	})
}

// Get state handler
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	sess, err := s.manager.Session(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found", err)
		return
	}

	state, err := sess.MarshalState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render state", err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// End session handler
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	if err := s.manager.EndSession(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Validation pipeline handler
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Document == nil {
		respondError(w, http.StatusBadRequest, "document is required", nil)
		return
	}
	if len(req.Schema) == 0 {
		respondError(w, http.StatusBadRequest, "schema is required", nil)
		return
	}

	schemaValidator, err := validation.NewJSONSchemaValidator(req.Schema)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid schema", err)
		return
	}

	pipeline := validation.NewPipeline(schemaValidator, s.semantic, logger.Logger)
	report := pipeline.Validate(r.Context(), req.Document, req.Rules)

	respondJSON(w, http.StatusOK, report)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
