package api

import (
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ChainScope-Agent/internal/analysis"
	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/job"
	"ChainScope-Agent/pkg/logger"
)

const maxBodyBytes = 1 << 20

type chatRequest struct {
	Message   string `json:"message"`
	ChainID   string `json:"chainId"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Success    bool                `json:"success"`
	Response   string              `json:"response"`
	ToolCalls  []analysis.ToolCall `json:"toolCalls,omitempty"`
	Iterations int                 `json:"iterations"`
	Category   analysis.Category   `json:"category,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	ChainID    string              `json:"chainId"`
	SessionID  string              `json:"sessionId"`
	ErrorCode  string              `json:"errorCode,omitempty"`
}

type errorResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Named("api").Warn("写出响应失败", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message, Timestamp: time.Now().UTC()})
}

// statusFor 把错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, job.CodeJobNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, job.CodeJobConflict:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	writeError(w, statusFor(xerrors.CodeOf(err)), message)
}

// decodeBody 解析 JSON 请求体，空请求体视为零值。
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if stdErrors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.agent != nil && len(s.agent.PublicTools()) > 0
	payload := map[string]any{
		"status":     "healthy",
		"agentReady": ready,
		"timestamp":  s.now().UTC(),
	}
	if s.sessions != nil {
		payload["sessions"] = s.sessions.Len()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if s.agent == nil || s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Agent is not initialized")
		return
	}

	sess, created := s.sessions.Acquire(strings.TrimSpace(req.SessionID))
	logger.Named("api").Info("收到对话请求",
		slog.String("session_id", sess.ID()),
		slog.Bool("new_session", created),
		slog.String("chain_id", req.ChainID),
	)
	result := sess.Chat(r.Context(), req.Message, strings.TrimSpace(req.ChainID))

	chainID := strings.TrimSpace(req.ChainID)
	if chainID == "" {
		chainID = "auto"
	}
	resp := chatResponse{
		Success:   result.Success,
		Response:  result.Error,
		Timestamp: result.Timestamp,
		ChainID:   chainID,
		SessionID: sess.ID(),
	}
	status := http.StatusOK
	if result.Success && result.Data != nil {
		resp.Response = result.Data.Response
		resp.ToolCalls = result.Data.ToolCalls
		resp.Iterations = result.Data.Iterations
		resp.Category = result.Data.Category
	} else {
		resp.ErrorCode = string(result.Code())
		status = statusFor(result.Code())
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("sessionId"))
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if s.sessions != nil {
		if sess, ok := s.sessions.Lookup(id); ok {
			sess.ClearHistory()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Conversation history cleared",
		"sessionId": id,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "Agent is not initialized")
		return
	}
	tools := s.agent.PublicTools()
	out := make([]toolInfo, 0, len(tools))
	for _, tool := range tools {
		params, _ := tool.InputSchema["properties"].(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		out = append(out, toolInfo{Name: tool.Name, Description: tool.Description, Parameters: params})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tools": out})
}

func (s *Server) handleExamples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "examples": exampleQueries})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Sessions are not initialized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": s.sessions.List()})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "Jobs are not enabled")
		return
	}
	var req struct {
		ID string `json:"id"`
		chatRequest
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	j, err := s.jobs.Submit(r.Context(), job.SubmitRequest{
		ID:        req.ID,
		SessionID: req.SessionID,
		Message:   req.Message,
		ChainID:   req.ChainID,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "Jobs are not enabled")
		return
	}
	j, err := s.jobs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "Jobs are not enabled")
		return
	}
	query := r.URL.Query()
	opts := []job.ListOption{job.WithSession(query.Get("sessionId"))}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		opts = append(opts, job.WithLimit(limit))
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []job.Status
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, job.Status(strings.TrimSpace(part)))
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}
	jobs, err := s.jobs.List(r.Context(), opts...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobs": jobs, "stats": stats})
}
