package api

import (
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/blueberrycongee/inferd/internal/httputil"
	"github.com/blueberrycongee/inferd/internal/observability"
	"github.com/blueberrycongee/inferd/internal/pool"
	gwerrors "github.com/blueberrycongee/inferd/pkg/errors"
	"github.com/blueberrycongee/inferd/pkg/types"
)

// handleChat serves POST /api/chat in both buffered and SSE modes.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	req := pool.GetChatRequest()
	defer pool.PutChatRequest(req)

	body, err := httputil.ReadLimitedBody(r.Body, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := json.Unmarshal(body, req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	genReq := types.GenerateRequest{
		RequestID: observability.RequestIDFromContext(r.Context()),
		Prompt:    req.Message,
		Params:    paramsFromChat(req),
		NoCache:   req.NoCache,
	}

	if req.Stream {
		h.streamChat(w, r, genReq)
		return
	}

	res, err := h.engine.Generate(r.Context(), genReq)
	if err != nil {
		gwErr := gwerrors.AsGatewayError(err)
		h.writeError(w, gwErr.HTTPStatusCode(), gwErr.Message)
		return
	}

	resp := pool.GetChatResponse()
	defer pool.PutChatResponse(resp)
	fillChatResponse(resp, res)

	status := http.StatusOK
	if res.Blocked {
		status = http.StatusForbidden
	}
	h.writeJSON(w, status, resp)
}

// streamChat replays the resolved response as server-sent events. The
// engine finishes the full generation before the first token, so an error
// still gets a proper status line; once a token has been written the error
// travels in-band instead.
func (h *Handler) streamChat(w http.ResponseWriter, r *http.Request, genReq types.GenerateRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream := h.engine.GenerateStream(r.Context(), genReq)

	started := false
	for token := range stream.Tokens() {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		writeSSE(w, map[string]any{"token": token})
		flusher.Flush()
	}

	res, err := stream.Result()
	if err != nil {
		if !started {
			gwErr := gwerrors.AsGatewayError(err)
			h.writeError(w, gwErr.HTTPStatusCode(), gwErr.Message)
			return
		}
		writeSSE(w, map[string]any{"error": gwerrors.AsGatewayError(err).Message, "status": "error"})
		flusher.Flush()
		return
	}

	if !started {
		// Empty response body. Open the stream anyway so the client sees
		// the terminal event.
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}

	final := map[string]any{
		"done":             true,
		"status":           chatStatus(res),
		"cache_hit":        res.CacheHit,
		"similarity":       res.Similarity,
		"tokens_generated": res.TokensGenerated,
	}
	writeSSE(w, final)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// paramsFromChat maps the wire request onto generation parameters. Absent
// fields stay zero so the engine applies its defaults; requested token
// counts are capped.
func paramsFromChat(req *types.ChatRequest) types.GenerationParams {
	params := types.GenerationParams{}
	if req.MaxTokens > 0 {
		params.MaxTokens = min(req.MaxTokens, MaxTokensCap)
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		params.TopP = *req.TopP
	}
	return params
}

func fillChatResponse(resp *types.ChatResponse, res *types.GenerateResult) {
	resp.Response = res.Response
	resp.Status = chatStatus(res)
	resp.TokensGenerated = res.TokensGenerated
	resp.CacheHit = res.CacheHit
	resp.Similarity = res.Similarity
	resp.Security = types.SecurityReport{
		Validated:      !res.Blocked,
		Warnings:       res.Warnings,
		Confidence:     res.Confidence,
		ASVSCompliance: res.ASVSCompliance,
	}
}

func chatStatus(res *types.GenerateResult) string {
	switch {
	case res.Blocked:
		return "blocked"
	case res.Demo:
		return "demo"
	default:
		return "success"
	}
}
