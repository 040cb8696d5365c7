package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.llmClient == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"chat_model":  s.cfg.ChatModel,
		"embed_model": s.cfg.EmbedModel,
		"stats":       s.llmClient.Stats().Snapshot(),
	})
}
