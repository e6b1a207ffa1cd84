package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AhinsaKavindi22/real-time-chat-application/internal/media"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/repository"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/service/auth"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/service/message"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	auth         auth.Service
	messages     message.Service
	registry     *ws.Registry
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	wsSendBuffer int
	dbHealth     func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, messageSvc message.Service, registry *ws.Registry, limiter RateLimiter, wsSendBuffer int, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		messages: messageSvc,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      limiter,
		wsSendBuffer: wsSendBuffer,
		dbHealth:     dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/status", r.audit("/api/status", r.handleStatus))
	r.mux.HandleFunc("/api/auth/signup", r.audit("/api/auth/signup", r.withRateLimit("/api/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/api/auth/login", r.audit("/api/auth/login", r.withRateLimit("/api/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/api/auth/check", r.audit("/api/auth/check", r.handlerAuthRate("/api/auth/check", rateLimitUserRead, rateWindowDefault, r.handleCheck)))
	r.mux.HandleFunc("/api/auth/update-profile", r.audit("/api/auth/update-profile", r.handlerAuthRate("/api/auth/update-profile", rateLimitUserWrite, rateWindowDefault, r.handleUpdateProfile)))
	r.mux.HandleFunc("/api/messages/", r.audit("/api/messages", r.handleMessageRoutes))
	r.mux.HandleFunc("/api/ws", r.audit("/api/ws", r.withRateLimit("/api/ws", rateLimitWebsocket, rateWindowRealtime, rateLimitKeyIP, r.handleWS)))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.SignupInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := r.auth.Signup(req.Context(), payload)
	if err != nil {
		r.respondServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"userData": user,
		"token":    token,
		"message":  "Account created successfully",
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.respondServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"userData": user,
		"token":    token,
		"message":  "Login successful",
	})
}

func (r *Router) handleCheck(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	user, err := r.auth.Authorize(req.Context(), bearerFromRequest(req))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func (r *Router) handleUpdateProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	var payload auth.UpdateProfileInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := r.auth.UpdateProfile(req.Context(), info.UserID, payload)
	if err != nil {
		r.respondServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

// handleMessageRoutes dispatches /api/messages/users, /api/messages/{id},
// /api/messages/mark/{id} and /api/messages/send/{id}.
func (r *Router) handleMessageRoutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/messages/")
	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) == 1 && parts[0] == "users":
		r.handlerAuthRate("/api/messages/users", rateLimitUserRead, rateWindowDefault, r.handleContacts)(w, req)
	case len(parts) == 2 && parts[0] == "mark" && parts[1] != "":
		r.handlerAuthRate("/api/messages/mark", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleMarkSeen(w, req, parts[1])
		})(w, req)
	case len(parts) == 2 && parts[0] == "send" && parts[1] != "":
		r.handlerAuthRate("/api/messages/send", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleSend(w, req, parts[1])
		})(w, req)
	case len(parts) == 1 && parts[0] != "":
		r.handlerAuthRate("/api/messages/conversation", rateLimitUserRead, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleConversation(w, req, parts[0])
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleContacts(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	users, unseen, err := r.messages.Contacts(req.Context(), info.UserID)
	if err != nil {
		r.respondServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"users":          users,
		"unseenMessages": unseen,
	})
}

func (r *Router) handleConversation(w http.ResponseWriter, req *http.Request, otherID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	msgs, err := r.messages.Conversation(req.Context(), info.UserID, otherID)
	if err != nil {
		r.respondServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (r *Router) handleMarkSeen(w http.ResponseWriter, req *http.Request, messageID string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	if err := r.messages.MarkSeen(req.Context(), messageID); err != nil {
		r.respondServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (r *Router) handleSend(w http.ResponseWriter, req *http.Request, receiverID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	var payload message.SendInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err := r.messages.Send(req.Context(), info.UserID, receiverID, payload)
	if err != nil {
		r.respondServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"newMessage": msg})
}

// handleWS upgrades the connection and ties its lifetime to presence. A
// valid token registers the user; no token yields an anonymous connection
// that is never counted online; a bad token is rejected before upgrade.
func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	var userID string
	if token := req.URL.Query().Get("token"); token != "" {
		user, err := r.auth.Authorize(req.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		userID = user.ID
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.wsSendBuffer, r.logger)
	if userID != "" {
		r.registry.Register(userID, client)
	}
	go func() {
		defer func() {
			if userID != "" {
				r.registry.Unregister(userID, client)
			}
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	components["websocket"] = map[string]any{
		"status": "up",
		"online": len(r.registry.Snapshot()),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeSuccess(w, code, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// respondServiceError maps service failures onto the response envelope
// without leaking transport or storage internals.
func (r *Router) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, message.ErrEmptyMessage),
		errors.Is(err, auth.ErrMissingFields),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, media.ErrInvalidImage),
		errors.Is(err, media.ErrImageTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "account already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, media.ErrUploadFailed):
		writeError(w, http.StatusBadGateway, "image upload failed")
	default:
		r.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (r *Router) missingAuthContext(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("auth context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "authorization context missing")
}

func bearerFromRequest(req *http.Request) string {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		return ""
	}
	return token
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required for the websocket upgrade to reach the raw connection.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
