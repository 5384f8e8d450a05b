package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maiserv/llamagate/pkg/catalog"
	"github.com/maiserv/llamagate/pkg/logging"
	"github.com/maiserv/llamagate/pkg/middleware"
)

const (
	// maximumChatRequestSize bounds request bodies to avoid abuse.
	maximumChatRequestSize = 10 << 20

	// chatConvergeTimeout bounds convergence for chat-completion requests.
	chatConvergeTimeout = 3 * time.Minute
	// uiConvergeTimeout bounds convergence for UI-driven ensure-any.
	uiConvergeTimeout = 5 * time.Minute
)

// Handler is the gateway's HTTP surface: thin translations from routes onto
// the catalog, the selector and the process controller, plus the reverse
// proxy for everything the backend answers itself.
type Handler struct {
	log        logging.Logger
	catalog    *catalog.Catalog
	controller ProcessController
	selector   *Selector
	settings   *Settings
	proxy      *Proxy
	mux        *http.ServeMux
	chatUI     bool
}

// NewHandler creates the gateway surface. metricsHandler, when non-nil, is
// served at /metrics; chatUI gates the /chat routes.
func NewHandler(
	log logging.Logger,
	cat *catalog.Catalog,
	controller ProcessController,
	selector *Selector,
	settings *Settings,
	proxy *Proxy,
	metricsHandler http.Handler,
	chatUI bool,
) *Handler {
	h := &Handler{
		log:        log,
		catalog:    cat,
		controller: controller,
		selector:   selector,
		settings:   settings,
		proxy:      proxy,
		mux:        http.NewServeMux(),
		chatUI:     chatUI,
	}

	auth := middleware.BearerAuth(settings.APIKey())

	h.mux.HandleFunc("GET /api/v1/models", h.handleModels)
	h.mux.Handle("POST /api/v1/chat/completions", auth(http.HandlerFunc(h.handleChatCompletions)))
	h.mux.Handle("/api/v1/", auth(h.proxy))
	h.mux.Handle("/api/v2/", auth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})))

	if chatUI {
		h.mux.HandleFunc("GET /chat", h.handleChatUI)
		h.mux.Handle("GET /chat/props", auth(http.HandlerFunc(h.handleChatProps)))
	}

	h.mux.Handle("GET /admin/llamacpp", auth(http.HandlerFunc(h.handleAdminState)))
	h.mux.Handle("PUT /admin/llamacpp", auth(http.HandlerFunc(h.handleAdminStart)))
	h.mux.Handle("DELETE /admin/llamacpp", auth(http.HandlerFunc(h.handleAdminStop)))

	if metricsHandler != nil {
		h.mux.Handle("GET /metrics", metricsHandler)
	}

	return h
}

// parallelContextKey carries a parallelism override from the /api/{n}/v1/...
// path prefix to the chat-completion handler.
type parallelContextKey struct{}

// ServeHTTP implements net/http.Handler.ServeHTTP. Requests using the
// parallelism path prefix are rewritten onto the plain /api/v1/... routes
// with the requested parallelism attached; the setting is only applied once
// the route's auth has passed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if parallel, rewritten, ok := cutParallelPrefix(r.URL.Path); ok {
		r = r.Clone(context.WithValue(r.Context(), parallelContextKey{}, parallel))
		r.URL.Path = rewritten
		r.URL.RawPath = ""
	}
	h.mux.ServeHTTP(w, r)
}

// cutParallelPrefix splits "/api/{n}/v1/..." into n and "/api/v1/...". Paths
// without a positive integer segment are returned unchanged.
func cutParallelPrefix(path string) (int, string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return 0, "", false
	}
	segment, remainder, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, "", false
	}
	parallel, err := strconv.Atoi(segment)
	if err != nil || parallel <= 0 {
		return 0, "", false
	}
	return parallel, "/api/" + remainder, true
}

// handleModels serves the expanded catalog, or just the alias list when
// names-only is requested.
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("names-only") == "true" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, h.catalog.Names())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.catalog.ModelList()); err != nil {
		h.log.Errorf("failed to encode model list: %v", err)
	}
}

// handleChatCompletions normalises the request body, applies prompt-level
// commands and the parallelism override when present, converges the backend
// onto the requested model and forwards the request.
func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if parallel, ok := r.Context().Value(parallelContextKey{}).(int); ok {
		h.settings.SetParallel(parallel)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maximumChatRequestSize))
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			http.Error(w, "request too large", http.StatusBadRequest)
		} else {
			http.Error(w, "failed to read request body", http.StatusInternalServerError)
		}
		return
	}

	request, err := decodeChatRequest(body)
	if err != nil {
		http.Error(w, "invalid chat-completion request", http.StatusUnprocessableEntity)
		return
	}
	messages, _ := request["messages"].([]any)
	if len(messages) == 0 {
		http.Error(w, "invalid chat-completion request", http.StatusUnprocessableEntity)
		return
	}

	alias, _ := request["model"].(string)

	if text, idx := lastUserMessageText(messages); idx >= 0 {
		directive := parsePromptDirective(text)
		switch directive.command {
		case promptStop:
			if err := h.controller.Stop(r.Context()); err != nil {
				h.log.Errorf("failed to stop llama-server: %v", err)
				http.Error(w, "failed to stop backend", http.StatusInternalServerError)
				return
			}
			writeSyntheticSSE(w, alias, stoppedResponseText)
			return
		case promptModel:
			alias = directive.model
			message := messages[idx].(map[string]any)
			message["content"] = directive.text
		}
	}

	if alias == "" {
		running, err := h.selector.RunningAlias(r.Context())
		if err != nil {
			http.Error(w, "backend unavailable", http.StatusInternalServerError)
			return
		}
		alias = running
		if alias == "" {
			alias = h.settings.DefaultModel()
		}
	}
	request["model"] = alias

	if err := h.selector.EnsureModel(r.Context(), alias, chatConvergeTimeout); err != nil {
		h.log.Errorf("error serving requested model %q: %v", alias, err)
		http.Error(w, "failed to serve requested model", http.StatusInternalServerError)
		return
	}

	forwardBody, err := json.Marshal(request)
	if err != nil {
		http.Error(w, "failed to encode upstream request", http.StatusInternalServerError)
		return
	}

	upstream := r.Clone(r.Context())
	upstream.URL.Path = "/v1/chat/completions"
	upstream.URL.RawPath = ""
	upstream.Body = io.NopCloser(bytes.NewReader(forwardBody))
	upstream.ContentLength = int64(len(forwardBody))
	h.proxy.ServeHTTP(w, upstream)
}

// handleChatUI serves the backend's chat UI, making sure some model is up
// first.
func (h *Handler) handleChatUI(w http.ResponseWriter, r *http.Request) {
	if err := h.selector.EnsureAny(r.Context(), uiConvergeTimeout); err != nil {
		h.log.Errorf("error serving chat UI: %v", err)
		http.Error(w, "failed to serve a model", http.StatusInternalServerError)
		return
	}
	h.proxy.ForwardTo(w, r, "/")
}

// handleChatProps proxies the backend's UI props endpoint.
func (h *Handler) handleChatProps(w http.ResponseWriter, r *http.Request) {
	h.proxy.ForwardTo(w, r, "/props")
}

// decodeChatRequest decodes a chat-completion body into a generic object and
// drops "max_tokens":-1, which llama-server rejects.
func decodeChatRequest(body []byte) (map[string]any, error) {
	var request map[string]any
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, err
	}
	if v, ok := request["max_tokens"].(float64); ok && v == -1 {
		delete(request, "max_tokens")
	}
	return request, nil
}
