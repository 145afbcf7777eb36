// Package llmtest provides an in-process stand-in for an OpenAI compatible
// provider.
package llmtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/infosage/backend/pkg/config"
)

// ChatFunc returns the assistant content for a chat request, or a non-200
// status to simulate a provider error.
type ChatFunc func(req openai.ChatCompletionRequest) (string, int)

// EmbedFunc returns the vector for an input, or a non-200 status.
type EmbedFunc func(input string) ([]float32, int)

type Server struct {
	srv *httptest.Server

	mu    sync.Mutex
	chat  ChatFunc
	embed EmbedFunc
	calls map[string]int
}

func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{calls: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChat)
	mux.HandleFunc("/v1/embeddings", s.handleEmbeddings)

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) URL() string {
	return s.srv.URL + "/v1"
}

func (s *Server) Config(embeddingDim int) config.LLMConfig {
	return config.LLMConfig{
		APIKey:          "test-key",
		BaseURL:         s.URL(),
		Model:           "test-model",
		FastModel:       "test-fast",
		ResearchModel:   "test-research",
		Temperature:     0.3,
		MaxTokens:       256,
		TimeoutSec:      5,
		ResearchTimeout: 5,
		EmbeddingModel:  "test-embedding",
		EmbeddingDim:    embeddingDim,
		MaxConcurrent:   3,
	}
}

func (s *Server) OnChat(fn ChatFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = fn
}

func (s *Server) OnEmbedding(fn EmbedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embed = fn
}

// Calls reports how many requests hit an endpoint ("chat" or "embeddings").
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// Prompt joins every message of a request so responders can route on it.
func Prompt(req openai.ChatCompletionRequest) string {
	parts := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.calls["chat"]++
	fn := s.chat
	s.mu.Unlock()

	if fn == nil {
		writeError(w, http.StatusInternalServerError, "no chat responder")
		return
	}

	content, status := fn(req)
	if status != 0 && status != http.StatusOK {
		writeError(w, status, content)
		return
	}

	writeJSON(w, openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	})
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.calls["embeddings"]++
	fn := s.embed
	s.mu.Unlock()

	if fn == nil || len(req.Input) == 0 {
		writeError(w, http.StatusInternalServerError, "no embedding responder")
		return
	}

	vec, status := fn(req.Input[0])
	if status != 0 && status != http.StatusOK {
		writeError(w, status, "embedding failed")
		return
	}

	writeJSON(w, openai.EmbeddingResponse{
		Object: "list",
		Data:   []openai.Embedding{{Object: "embedding", Embedding: vec, Index: 0}},
		Model:  openai.EmbeddingModel(req.Model),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "test_error",
		},
	})
}
