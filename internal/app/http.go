package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"huddle/api/internal/aggregate"
	"huddle/api/internal/auth"
	"huddle/api/internal/lifecycle"
	"huddle/api/internal/ratelimit"
	"huddle/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) < 3 || segments[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch segments[1] {
	case "sessions":
		s.handleSession(w, r, segments[2], segments[3:])
	case "activities":
		s.handleActivity(w, r, segments[2], segments[3:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingCounter(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["counter"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && rest[0] == "join":
		var body struct {
			DisplayName string `json:"displayName"`
			GroupID     string `json:"groupId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.JoinSession(r.Context(), sessionID, body.DisplayName, body.GroupID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"token":       result.Token,
			"expiresAt":   result.ExpiresAt.UTC().Format(time.RFC3339),
			"participant": participantPayload(result.Participant),
		})

	case r.Method == http.MethodPost && rest[0] == "facilitator-token":
		if !s.service.ValidAdminToken(r.Header.Get("X-Huddle-Admin-Token")) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		token, err := s.service.FacilitatorToken(r.Context(), sessionID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": token})

	case r.Method == http.MethodGet && rest[0] == "activities":
		caller, ok := s.requireCaller(w, r)
		if !ok {
			return
		}
		activities, err := s.service.ListActivities(r.Context(), caller, sessionID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(activities))
		for _, activity := range activities {
			payload = append(payload, activityPayload(activity))
		}
		writeJSON(w, http.StatusOK, map[string]any{"activities": payload})

	case r.Method == http.MethodGet && rest[0] == "leaderboard":
		caller, ok := s.requireCaller(w, r)
		if !ok {
			return
		}
		rows, err := s.service.SessionLeaderboard(r.Context(), caller, sessionID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			payload = append(payload, map[string]any{
				"groupId":         row.GroupID,
				"groupName":       row.GroupName,
				"total":           row.Total,
				"voteCount":       row.VoteCount,
				"submissionCount": row.SubmissionCount,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"leaderboard": payload})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleActivity(w http.ResponseWriter, r *http.Request, activityID string, rest []string) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "status":
		var body struct {
			Status string `json:"status"`
			Skip   bool   `json:"skip"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		activity, err := s.service.TransitionActivity(r.Context(), caller, activityID, lifecycle.Status(body.Status), body.Skip)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": activityPayload(activity)})

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "extend":
		var body struct {
			Minutes int `json:"minutes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		activity, err := s.service.ExtendActivity(r.Context(), caller, activityID, body.Minutes)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": activityPayload(activity)})

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "submissions":
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		submission, err := s.service.CreateSubmission(r.Context(), caller, activityID, body.Text)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"submission": submissionPayload(submission)})

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "stocktake-responses":
		var body struct {
			InitiativeID string `json:"initiativeId"`
			Choice       string `json:"choice"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		response, err := s.service.CreateStocktakeResponse(r.Context(), caller, activityID, body.InitiativeID, body.Choice)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"response": map[string]any{
			"id":           response.ID,
			"activityId":   response.ActivityID,
			"initiativeId": response.InitiativeID,
			"choice":       response.Choice,
		}})

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "votes":
		var body struct {
			SubmissionID string `json:"submissionId"`
			Value        int    `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		vote, err := s.service.CastVote(r.Context(), caller, activityID, body.SubmissionID, body.Value)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"vote": map[string]any{
			"id":           vote.ID,
			"activityId":   vote.ActivityID,
			"submissionId": vote.SubmissionID,
			"value":        vote.Value,
		}})

	case r.Method == http.MethodPost && len(rest) == 2 && rest[0] == "votes" && rest[1] == "batch":
		var body struct {
			Votes []VoteEntry `json:"votes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		accepted, err := s.service.CastVoteBatch(r.Context(), caller, activityID, body.Votes)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"accepted": accepted})

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "results":
		results, err := s.service.Results(r.Context(), caller, activityID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resultsPayload(results))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) requireCaller(w http.ResponseWriter, r *http.Request) (Caller, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Caller{}, false
	}
	caller, err := s.service.CallerFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Caller{}, false
	}
	return caller, true
}

func participantPayload(participant store.Participant) map[string]any {
	payload := map[string]any{
		"id":          participant.ID,
		"sessionId":   participant.SessionID,
		"displayName": participant.DisplayName,
	}
	if participant.GroupID != nil {
		payload["groupId"] = *participant.GroupID
	}
	return payload
}

func activityPayload(activity store.Activity) map[string]any {
	payload := map[string]any{
		"id":         activity.ID,
		"sessionId":  activity.SessionID,
		"type":       activity.Type,
		"status":     activity.Status,
		"config":     activity.Config,
		"orderIndex": activity.OrderIndex,
	}
	if activity.StartsAt != nil {
		payload["startsAt"] = activity.StartsAt.UTC().Format(time.RFC3339)
	}
	if activity.EndsAt != nil {
		payload["endsAt"] = activity.EndsAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func submissionPayload(submission store.Submission) map[string]any {
	payload := map[string]any{
		"id":            submission.ID,
		"activityId":    submission.ActivityID,
		"participantId": submission.ParticipantID,
		"text":          submission.Text,
		"createdAt":     submission.CreatedAt.UTC().Format(time.RFC3339),
	}
	if submission.GroupID != nil {
		payload["groupId"] = *submission.GroupID
	}
	return payload
}

func resultsPayload(results ActivityResults) map[string]any {
	if results.Stocktake != nil {
		return map[string]any{"stocktake": stocktakePayload(*results.Stocktake)}
	}
	payload := make([]map[string]any, 0, len(results.Submissions))
	for _, result := range results.Submissions {
		entry := submissionPayload(result.Submission)
		entry["voteCount"] = result.Stats.N
		entry["avg"] = floatOrNil(result.Stats.Avg)
		entry["stdDev"] = floatOrNil(result.Stats.StdDev)
		entry["consensus"] = floatOrNil(result.Stats.Consensus)
		payload = append(payload, entry)
	}
	return map[string]any{"submissions": payload}
}

func stocktakePayload(summary aggregate.StocktakeSummary) map[string]any {
	initiatives := make([]map[string]any, 0, len(summary.Initiatives))
	for _, stats := range summary.Initiatives {
		initiatives = append(initiatives, map[string]any{
			"id":      stats.ID,
			"title":   stats.Title,
			"n":       stats.N,
			"avg":     stats.Avg,
			"stdDev":  stats.StdDev,
			"support": stats.Support,
		})
	}
	return map[string]any{
		"initiatives":   initiatives,
		"overallAvg":    summary.OverallAvg,
		"responseCount": summary.ResponseCount,
	}
}

func floatOrNil(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Huddle-Admin-Token")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	body := map[string]any{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		retryAfter := int(math.Ceil(limitErr.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded", map[string]any{
			"retryAfterSeconds": retryAfter,
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
