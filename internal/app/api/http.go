package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/volunteerhub/volunteerhub/internal/app/events"
	"github.com/volunteerhub/volunteerhub/internal/app/identity"
	"github.com/volunteerhub/volunteerhub/internal/app/matching"
	"github.com/volunteerhub/volunteerhub/internal/app/notify"
	"github.com/volunteerhub/volunteerhub/internal/app/profile"
	"github.com/volunteerhub/volunteerhub/internal/app/reports"
	platformauth "github.com/volunteerhub/volunteerhub/internal/platform/auth"
	"github.com/volunteerhub/volunteerhub/internal/platform/metrics"
	"go.uber.org/zap"
)

var (
	matchComputations = metrics.NewCounterVec(metrics.Opts{
		Name: "volunteerhub_match_computations_total",
		Help: "Match pool computations by outcome.",
	}, []string{"status"})
	assignmentRequests = metrics.NewCounterVec(metrics.Opts{
		Name: "volunteerhub_assignment_requests_total",
		Help: "Assignment requests by outcome.",
	}, []string{"status"})
	notificationSends = metrics.NewCounterVec(metrics.Opts{
		Name: "volunteerhub_notification_sends_total",
		Help: "Direct notification sends by outcome.",
	}, []string{"status"})
)

func init() {
	metrics.Default.MustRegister(matchComputations, assignmentRequests, notificationSends)
}

type Handler struct {
	Identity      *identity.Service
	Profiles      *profile.Service
	Events        *events.Service
	Matching      *matching.Service
	Notify        *notify.Service
	Reports       reports.Repository
	AllowedOrigin string
	Logger        *zap.Logger
}

func NewHandler(
	identitySvc *identity.Service,
	profileSvc *profile.Service,
	eventSvc *events.Service,
	matchingSvc *matching.Service,
	notifySvc *notify.Service,
	reportsRepo reports.Repository,
	allowedOrigin string,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Identity:      identitySvc,
		Profiles:      profileSvc,
		Events:        eventSvc,
		Matching:      matchingSvc,
		Notify:        notifySvc,
		Reports:       reportsRepo,
		AllowedOrigin: allowedOrigin,
		Logger:        logger,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.corsMiddleware)
	r.Use(h.logMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/api/v1/auth/register", h.handleRegister)
	r.Post("/api/v1/auth/login", h.handleLogin)
	r.Post("/api/v1/auth/refresh", h.handleRefresh)
	r.Post("/api/v1/auth/logout", h.handleLogout)
	r.Get("/api/v1/states", h.handleStates)

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware)
		authR.Get("/api/v1/profile", h.handleGetProfile)
		authR.Put("/api/v1/profile", h.handleSaveProfile)
		authR.Get("/api/v1/events", h.handleListEvents)
		authR.Get("/api/v1/events/{eventID}", h.handleGetEvent)
		authR.Get("/api/v1/notifications", h.handleInbox)

		authR.Group(func(adminR chi.Router) {
			adminR.Use(h.requireAdmin)
			adminR.Post("/api/v1/events", h.handleCreateEvent)
			adminR.Get("/api/v1/events/{eventID}/matches", h.handleMatches)
			adminR.Post("/api/v1/events/{eventID}/assignments", h.handleAssign)
			adminR.Get("/api/v1/assignments", h.handleListAssignments)
			adminR.Post("/api/v1/notifications", h.handleSendNotification)
			adminR.Get("/api/v1/volunteers", h.handleListVolunteers)
			adminR.Get("/api/v1/reports/volunteers", h.handleVolunteerReport)
			adminR.Get("/api/v1/reports/events", h.handleEventReport)
		})
	})

	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type assignRequest struct {
	VolunteerID string `json:"volunteer_id"`
}

type sendNotificationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrInvalidPassword):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrEmailTaken):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrRefreshTokenMissing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrInvalidRefreshToken):
			h.writeError(w, http.StatusUnauthorized, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.Identity.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, identity.ErrRefreshTokenMissing) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStates(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, profile.States())
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	p, err := h.Profiles.Get(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			h.writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	saved, err := h.Profiles.Save(r.Context(), claims.Subject, p)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrInvalidProfile), errors.Is(err, profile.ErrInvalidAvailability):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	all, err := h.Events.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, all)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	evt, err := h.Events.Get(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		switch {
		case errors.Is(err, events.ErrIDRequired):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, events.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "event not found")
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, evt)
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req events.Event
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	created, err := h.Events.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, events.ErrInvalidEvent),
			errors.Is(err, events.ErrSkillsRequired),
			errors.Is(err, events.ErrInvalidDate):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleMatches(w http.ResponseWriter, r *http.Request) {
	results, err := h.Matching.ComputeMatches(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		switch {
		case errors.Is(err, matching.ErrEventIDRequired):
			matchComputations.WithLabelValues("invalid").Inc()
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, matching.ErrEventNotFound):
			matchComputations.WithLabelValues("not_found").Inc()
			h.writeError(w, http.StatusNotFound, "event not found")
		default:
			matchComputations.WithLabelValues("error").Inc()
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	matchComputations.WithLabelValues("ok").Inc()
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	rec, err := h.Matching.Assign(r.Context(), chi.URLParam(r, "eventID"), req.VolunteerID)
	if err != nil {
		switch {
		case errors.Is(err, matching.ErrEventIDRequired), errors.Is(err, matching.ErrVolunteerIDRequired):
			assignmentRequests.WithLabelValues("invalid").Inc()
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, matching.ErrEventNotFound):
			assignmentRequests.WithLabelValues("not_found").Inc()
			h.writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, matching.ErrVolunteerNotFound):
			assignmentRequests.WithLabelValues("not_found").Inc()
			h.writeError(w, http.StatusNotFound, "volunteer not found")
		case errors.Is(err, matching.ErrAlreadyAssigned):
			assignmentRequests.WithLabelValues("conflict").Inc()
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			assignmentRequests.WithLabelValues("error").Inc()
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	assignmentRequests.WithLabelValues("ok").Inc()
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	views, err := h.Matching.ListAssignments(r.Context(), r.URL.Query().Get("event_id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleInbox(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	inbox, err := h.Notify.Inbox(r.Context(), claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, inbox)
}

func (h *Handler) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	n, err := h.Notify.Send(r.Context(), req.UserID, req.Title, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrUserIDRequired), errors.Is(err, notify.ErrTitleRequired):
			notificationSends.WithLabelValues("invalid").Inc()
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			notificationSends.WithLabelValues("error").Inc()
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	notificationSends.WithLabelValues("ok").Inc()
	h.writeJSON(w, http.StatusCreated, n)
}

func (h *Handler) handleListVolunteers(w http.ResponseWriter, r *http.Request) {
	vols, err := h.Profiles.ListVolunteers(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, vols)
}

func (h *Handler) handleVolunteerReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reports.VolunteerParticipation(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleEventReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reports.EventRosters(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin, Access-Control-Request-Headers")
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOriginForRequest(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
		if requestHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowedOriginForRequest(requestOrigin string) string {
	allowed := strings.TrimSpace(h.AllowedOrigin)
	if allowed == "" {
		return "*"
	}
	if allowed == "*" {
		return allowed
	}

	origin := strings.TrimSpace(requestOrigin)
	if origin == "" {
		return allowed
	}
	if origin == allowed {
		return origin
	}
	if isEquivalentLoopbackOrigin(origin, allowed) {
		return origin
	}
	return allowed
}

func isEquivalentLoopbackOrigin(originA, originB string) bool {
	a, err := url.Parse(originA)
	if err != nil {
		return false
	}
	b, err := url.Parse(originB)
	if err != nil {
		return false
	}
	if !isLoopbackHost(a.Hostname()) || !isLoopbackHost(b.Hostname()) {
		return false
	}
	if a.Port() != b.Port() {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme)
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

type claimsContextKey struct{}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := platformauth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.Identity.AuthToken.Parse(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := r.Context()
		ctx = contextWithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !claimsFromContext(r.Context()).IsAdmin() {
			h.writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		h.Logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func contextWithClaims(ctx context.Context, claims platformauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func claimsFromContext(ctx context.Context) platformauth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(platformauth.Claims)
	return claims
}
