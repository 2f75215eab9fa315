package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kazuhei/tansaku/internal/agent"
	"github.com/kazuhei/tansaku/internal/observability"
	"github.com/kazuhei/tansaku/internal/store"
	"github.com/tmc/langchaingo/llms"
)

// Agent is the run entry point the gateway fronts.
type Agent interface {
	Run(ctx context.Context, query string, history []llms.MessageContent) (*agent.Result, error)
}

// RunSink receives completed run records. It is write-only from the
// gateway's perspective and never load-bearing for a run.
type RunSink interface {
	RecordRun(rec store.RunRecord) error
}

var _ Gateway = (*HTTPGateway)(nil)

// HTTPGateway exposes the agent over HTTP.
type HTTPGateway struct {
	agent Agent
	sink  RunSink
	srv   *http.Server
}

func NewHTTPGateway(addr string, a Agent, sink RunSink) *HTTPGateway {
	g := &HTTPGateway{agent: a, sink: sink}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/agent/run", g.handleRun)
	mux.HandleFunc("GET /healthz", g.handleHealth)
	mux.HandleFunc("GET /status", g.handleStatus)

	g.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return g
}

func (g *HTTPGateway) Start() error {
	return g.srv.ListenAndServe()
}

func (g *HTTPGateway) Stop(ctx context.Context) error {
	return g.srv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (g *HTTPGateway) Handler() http.Handler {
	return g.srv.Handler
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runRequest struct {
	Query       string        `json:"query"`
	ChatHistory []chatMessage `json:"chat_history"`
}

func (g *HTTPGateway) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	result, err := g.agent.Run(r.Context(), req.Query, toMessages(req.ChatHistory))
	if err != nil {
		log.Printf("run failed: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrEmptyPlan) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)

	// Persist the record off the request path; the sink must never fail
	// or delay a run.
	if g.sink != nil {
		go g.record(result, time.Since(start))
	}
}

func (g *HTTPGateway) record(result *agent.Result, elapsed time.Duration) {
	subtasks, err := json.Marshal(result.Subtasks)
	if err != nil {
		log.Printf("failed to marshal subtasks for run %s: %v", result.RunID, err)
		return
	}
	rec := store.RunRecord{
		ID:         result.RunID,
		Query:      result.Query,
		Plan:       result.Plan,
		Subtasks:   subtasks,
		Answer:     result.Answer,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := g.sink.RecordRun(rec); err != nil {
		log.Printf("failed to record run %s: %v", result.RunID, err)
	}
}

func (g *HTTPGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *HTTPGateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, observability.GetSnapshot())
}

func toMessages(history []chatMessage) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		var role llms.ChatMessageType
		switch m.Role {
		case "assistant", "ai":
			role = llms.ChatMessageTypeAI
		case "system":
			role = llms.ChatMessageTypeSystem
		default:
			role = llms.ChatMessageTypeHuman
		}
		messages = append(messages, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}
	return messages
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
