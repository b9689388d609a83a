// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// sessionCookieName is the cookie that carries the session token.
const sessionCookieName = "session_id"

// Handler serves the authentication HTTP API.
type Handler struct {
	service *auth.Service
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHandler creates the API handler. metrics may be nil, in which case
// no counters are recorded.
func NewHandler(service *auth.Service, logger *slog.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		metrics: metrics,
	}
}

// Routes registers the API routes on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleWelcome)
	mux.HandleFunc("POST /users", h.handleRegister)
	mux.HandleFunc("POST /sessions", h.handleLogin)
	mux.HandleFunc("DELETE /sessions", h.handleLogout)
	mux.HandleFunc("GET /profile", h.handleProfile)
	mux.HandleFunc("POST /reset_password", h.handleResetRequest)
	mux.HandleFunc("PUT /reset_password", h.handleResetUpdate)
	return mux
}

// handleWelcome serves the landing payload.
func (h *Handler) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	h.sendJSON(w, map[string]string{"message": "Bienvenue"}, http.StatusOK)
}

// handleRegister creates a new user from form-encoded email and password.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	user, err := h.service.Register(ctx, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			if h.metrics != nil {
				h.metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			}
			h.sendError(w, "email already registered", http.StatusBadRequest)
			return
		}
		if h.metrics != nil {
			h.metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		}
		h.logger.WarnContext(ctx, "registration rejected", slog.Any("error", err))
		h.sendError(w, "invalid registration", http.StatusBadRequest)
		return
	}

	if h.metrics != nil {
		h.metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	}
	h.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID.String()))

	h.sendJSON(w, map[string]string{
		"email":   user.Email,
		"message": "user created",
	}, http.StatusOK)
}

// handleLogin verifies credentials and issues a session cookie.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	ok, err := h.service.Authenticate(ctx, email, password)
	if err != nil {
		h.logger.ErrorContext(ctx, "authentication failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		if h.metrics != nil {
			h.metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		}
		h.sendError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, session, err := h.service.CreateSession(ctx, email)
	if err != nil {
		h.logger.ErrorContext(ctx, "session creation failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if session == nil {
		// The account vanished between the credential check and session
		// creation. Treat it as a failed login.
		if h.metrics != nil {
			h.metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		}
		h.sendError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues("accepted").Inc()
		h.metrics.SessionsIssued.Inc()
	}
	h.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", session.UserID.String()))

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	h.sendJSON(w, map[string]string{
		"email":   email,
		"message": "logged in",
	}, http.StatusOK)
}

// handleLogout destroys the session named by the cookie and redirects home.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.service.ResolveSession(ctx, h.sessionToken(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "session lookup failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		h.sendError(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.service.DestroySession(ctx, user.ID); err != nil {
		h.logger.ErrorContext(ctx, "session destruction failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsDestroyed.Inc()
	}
	h.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", user.ID.String()))

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleProfile returns the email of the user owning the session cookie.
func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.service.ResolveSession(ctx, h.sessionToken(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "session lookup failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		h.sendError(w, "forbidden", http.StatusForbidden)
		return
	}

	h.sendJSON(w, map[string]string{"email": user.Email}, http.StatusOK)
}

// handleResetRequest issues a password reset token for a registered email.
func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email := r.PostFormValue("email")

	token, err := h.service.IssueResetToken(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			h.sendError(w, "forbidden", http.StatusForbidden)
			return
		}
		h.logger.ErrorContext(ctx, "reset token issuance failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.ResetsIssued.Inc()
	}
	h.logger.InfoContext(ctx, "password reset token issued")

	h.sendJSON(w, map[string]string{
		"email":       email,
		"reset_token": token,
	}, http.StatusOK)
}

// handleResetUpdate redeems a reset token and sets the new password.
func (h *Handler) handleResetUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email := r.PostFormValue("email")
	token := r.PostFormValue("reset_token")
	newPassword := r.PostFormValue("new_password")

	if err := h.service.UpdatePassword(ctx, token, newPassword); err != nil {
		if h.metrics != nil {
			h.metrics.ResetsRedeemed.WithLabelValues("rejected").Inc()
		}
		h.logger.WarnContext(ctx, "password reset rejected", slog.Any("error", err))
		h.sendError(w, "forbidden", http.StatusForbidden)
		return
	}

	if h.metrics != nil {
		h.metrics.ResetsRedeemed.WithLabelValues("redeemed").Inc()
	}
	h.logger.InfoContext(ctx, "password updated via reset token")

	h.sendJSON(w, map[string]string{
		"email":   email,
		"message": "Password updated",
	}, http.StatusOK)
}

// sessionToken extracts the session token from the request cookie.
// Returns empty string when the cookie is absent.
func (h *Handler) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func (h *Handler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, map[string]string{"message": message}, statusCode)
}
