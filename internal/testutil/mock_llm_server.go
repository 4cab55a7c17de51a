package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// ModelServer is a fake language-model endpoint that answers every chat
// request with the same assistant content.
type ModelServer struct {
	*httptest.Server
	calls atomic.Int64
}

// Calls returns how many chat requests were served.
func (m *ModelServer) Calls() int { return int(m.calls.Load()) }

// NewModelServer starts a server answering both OpenAI-style
// POST /v1/chat/completions and Ollama-style POST /api/chat with content.
// Caller must Close it or register t.Cleanup(server.Close).
func NewModelServer(content string) *ModelServer {
	m := &ModelServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp interface{}
		switch r.URL.Path {
		case "/v1/chat/completions", "/chat/completions":
			resp = map[string]interface{}{
				"id":     "chatcmpl-test",
				"object": "chat.completion",
				"model":  "gpt-4o-mini",
				"choices": []map[string]interface{}{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				}},
				"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
			}
		case "/api/chat":
			resp = map[string]interface{}{
				"message":           map[string]string{"role": "assistant", "content": content},
				"done":              true,
				"done_reason":       "stop",
				"prompt_eval_count": 10,
				"eval_count":        20,
			}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	return m
}

// SensitiveItem is one entry of a model's sensitiveItems answer.
type SensitiveItem struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	Severity   string  `json:"severity,omitempty"`
}

// SensitiveItemsJSON renders the JSON answer the PII prompt expects.
func SensitiveItemsJSON(riskLevel string, items ...SensitiveItem) string {
	if items == nil {
		items = []SensitiveItem{}
	}
	b, _ := json.Marshal(map[string]interface{}{
		"sensitiveItems": items,
		"riskLevel":      riskLevel,
		"explanation":    "test answer",
	})
	return string(b)
}
