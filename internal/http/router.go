// Package httpx exposes the dashboard backend over HTTP JSON endpoints.
package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clubdeck/api/internal/identity"
	"github.com/clubdeck/api/internal/service/auth"
	"github.com/clubdeck/api/internal/service/dashboard"
	"github.com/clubdeck/api/internal/service/match"
	"github.com/clubdeck/api/internal/service/plan"
	"github.com/clubdeck/api/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      auth.Service
	dashboard dashboard.Service
	matches   match.Service
	plans     *plan.Engine
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	quotaDenials       *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitReset     = 5
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
	sseHeartbeatEvery  = 25 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, dashSvc dashboard.Service, matchSvc match.Service, plans *plan.Engine, hub *ws.Hub, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      authSvc,
		dashboard: dashSvc,
		matches:   matchSvc,
		plans:     plans,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
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
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.withRateLimit("/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/reset/request", r.audit("/auth/reset/request", r.withRateLimit("/auth/reset/request", rateLimitReset, rateWindowDefault, rateLimitKeyIP, r.handleResetRequest)))
	r.mux.HandleFunc("/auth/reset/complete", r.audit("/auth/reset/complete", r.withRateLimit("/auth/reset/complete", rateLimitReset, rateWindowDefault, rateLimitKeyIP, r.handleResetComplete)))
	r.mux.HandleFunc("/dashboard", r.audit("/dashboard", r.handlerAuthRate("/dashboard", rateLimitUserRead, rateWindowDefault, r.handleDashboard)))
	r.mux.HandleFunc("/teams", r.audit("/teams", r.handlerAuthRate("/teams", rateLimitUserWrite, rateWindowDefault, r.handleTeams)))
	r.mux.HandleFunc("/players", r.audit("/players", r.handlerAuthRate("/players", rateLimitUserWrite, rateWindowDefault, r.handlePlayers)))
	r.mux.HandleFunc("/matches", r.audit("/matches", r.handlerAuthRate("/matches", rateLimitUserWrite, rateWindowDefault, r.handleMatches)))
	r.mux.HandleFunc("/matches/", r.audit("/matches/{id}", r.handlerAuthRate("/matches/{id}", rateLimitUserWrite, rateWindowDefault, r.handleMatchSubroutes)))
	r.mux.HandleFunc("/profile", r.audit("/profile", r.handlerAuthRate("/profile", rateLimitUserRead, rateWindowDefault, r.handleProfile)))
	r.mux.HandleFunc("/ws/dashboard", r.audit("/ws/dashboard", r.handlerAuthRate("/ws/dashboard", rateLimitWebsocket, rateWindowRealtime, r.handleDashboardWS)))
	r.mux.HandleFunc("/events/dashboard", r.audit("/events/dashboard", r.handlerAuthRate("/events/dashboard", rateLimitWebsocket, rateWindowRealtime, r.handleDashboardSSE)))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Email, payload.DisplayName, payload.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user": map[string]any{
			"id":           user.ID,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"plan_tier":    user.PlanTier,
		},
		"tokens": tokens,
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
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":           user.ID,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"plan_tier":    user.PlanTier,
		},
		"tokens": tokens,
	})
}

func (r *Router) handleResetRequest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.RequestPasswordReset(req.Context(), payload.Email); err != nil {
		writeError(w, http.StatusServiceUnavailable, "could not process reset request")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (r *Router) handleResetComplete(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.CompletePasswordReset(req.Context(), payload.Token, payload.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	id, ok := r.identityFromContext(w, req)
	if !ok {
		return
	}
	view, err := r.dashboard.View(req.Context(), id)
	if err != nil {
		r.serviceError(w, "/dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	id, ok := r.identityFromContext(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		view, err := r.dashboard.View(req.Context(), id)
		if err != nil {
			r.serviceError(w, "/teams", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"teams": view.Teams})
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		team, err := r.dashboard.CreateTeam(req.Context(), id, payload.Name)
		if err != nil {
			r.serviceError(w, "/teams", err)
			return
		}
		writeJSON(w, http.StatusCreated, team)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handlePlayers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	id, ok := r.identityFromContext(w, req)
	if !ok {
		return
	}
	var payload dashboard.PlayerInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	player, err := r.dashboard.CreatePlayer(req.Context(), id, payload)
	if err != nil {
		r.serviceError(w, "/players", err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (r *Router) handleMatches(w http.ResponseWriter, req *http.Request) {
	id, ok := r.identityFromContext(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		matches, err := r.matches.List(req.Context(), id)
		if err != nil {
			r.serviceError(w, "/matches", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
	case http.MethodPost:
		var payload dashboard.MatchInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.dashboard.CreateMatch(req.Context(), id, payload)
		if err != nil {
			r.serviceError(w, "/matches", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleMatchSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/matches/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" {
		r.notFound(w)
		return
	}
	matchID, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	switch parts[1] {
	case "advance":
		r.handleMatchAdvance(w, req, matchID)
	case "score":
		r.handleMatchScore(w, req, matchID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleMatchAdvance(w http.ResponseWriter, req *http.Request, matchID uuid.UUID) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	id, ok := r.identityFromContext(w, req)
	if !ok {
		return
	}
	advanced, err := r.matches.Advance(req.Context(), id, matchID)
	if err != nil {
		r.serviceError(w, "/matches/{id}/advance", err)
		return
	}
	writeJSON(w, http.StatusOK, advanced)
}

func (r *Router) handleMatchScore(w http.ResponseWriter, req *http.Request, matchID uuid.UUID) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	id, ok := r.identityFromContext(w, req)
	if !ok {
		return
	}
	var payload struct {
		HomeScore int `json:"home_score"`
		AwayScore int `json:"away_score"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := r.matches.SetScore(req.Context(), id, matchID, payload.HomeScore, payload.AwayScore)
	if err != nil {
		r.serviceError(w, "/matches/{id}/score", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	id, ok := r.identityFromContext(w, req)
	if !ok {
		return
	}
	summary, err := r.plans.GetSubscriptionSummary(req.Context(), id)
	if err != nil {
		r.serviceError(w, "/profile", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (r *Router) handleDashboardWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for dashboard websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	key := identity.FromUserID(info.UserID).String()
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(key, client)
	go func() {
		defer func() {
			r.hub.Unregister(key, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleDashboardSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for dashboard stream", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	key := identity.FromUserID(info.UserID).String()
	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(key, client)
	defer func() {
		r.hub.Unregister(key, client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
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
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// identityFromContext maps the authenticated user onto the quota
// identity that scopes every stored collection.
func (r *Router) identityFromContext(w http.ResponseWriter, req *http.Request) (identity.Key, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return identity.Key(""), false
	}
	return identity.FromUserID(info.UserID), true
}

// serviceError translates service sentinels into HTTP statuses. Errors
// without a mapping are treated as storage failures: writes must not
// pretend to succeed, so the caller sees 503 rather than a masked 500.
func (r *Router) serviceError(w http.ResponseWriter, route string, err error) {
	switch {
	case errors.Is(err, dashboard.ErrQuotaExceeded):
		r.recordQuotaDenial(route)
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, dashboard.ErrTeamNotFound), errors.Is(err, match.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dashboard.ErrInvalidTeamName),
		errors.Is(err, dashboard.ErrInvalidPlayerName),
		errors.Is(err, dashboard.ErrSameTeam),
		errors.Is(err, dashboard.ErrKickoffRequired),
		errors.Is(err, match.ErrNegativeScore):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, match.ErrMatchCompleted), errors.Is(err, match.ErrMatchNotLive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		r.logger.Error("storage operation failed", "route", route, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	}
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
			if info.Tier != "" {
				fields = append(fields, "tier", info.Tier)
			}
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

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
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
