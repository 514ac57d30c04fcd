package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/api/dto"
	"github.com/hugh/orgauth/internal/api/middleware"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/authz"
	"github.com/hugh/orgauth/internal/database/models"
)

// CookieConfig controls the session cookie set on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	authService *auth.Service
	gate        *authz.Gate
	csrf        *middleware.CSRFStore
	cookie      CookieConfig
}

func NewAuthHandler(authService *auth.Service, gate *authz.Gate, csrf *middleware.CSRFStore, cookie CookieConfig) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "auth-token"
	}
	return &AuthHandler{authService: authService, gate: gate, csrf: csrf, cookie: cookie}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if verrs := req.Validate(); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verrs})
		return
	}

	resp, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		OrgName:   req.OrgName,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "User already exists"})
		case errors.Is(err, auth.ErrWeakPassword):
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Registration failed"})
		}
		return
	}

	h.setSessionCookie(w, resp.Token, resp.ExpiresAt)
	writeJSON(w, http.StatusCreated, dto.NewAuthResponse(resp.Token, resp.ExpiresAt, dto.UserFromProjection(resp.User), resp.Organization))
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if verrs := req.Validate(); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verrs})
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid credentials"})
		case errors.Is(err, auth.ErrInactiveUser):
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Account is inactive"})
		case errors.Is(err, auth.ErrStore):
			middleware.WriteAuthError(w, err)
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Login failed"})
		}
		return
	}

	h.setSessionCookie(w, resp.Token, resp.ExpiresAt)
	writeJSON(w, http.StatusOK, dto.NewAuthResponse(resp.Token, resp.ExpiresAt, dto.UserFromProjection(resp.User), resp.Organization))
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

// Account handles GET /api/v1/me/account
func (h *AuthHandler) Account(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AccountFromProjection(user))
}

// CloseAccount handles DELETE /api/v1/me. The account is soft-disabled, so
// every outstanding token stops resolving on its next use.
func (h *AuthHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.authService.SetUserStatus(r.Context(), userID, models.UserStatusInactive, false); err != nil {
		h.writeAccountError(w, err)
		return
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeAccountError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrUserNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Account not found", Code: "not_found"})
		return
	}
	middleware.WriteAuthError(w, auth.NewStoreError("account", err))
}

// CSRFToken handles GET /api/v1/auth/csrf
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token := ""
	if h.csrf != nil {
		token = middleware.GetCSRFToken(r, h.csrf)
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// SwitchOrganization handles POST /api/v1/session/organization. The target
// membership is re-checked before a new token is issued.
func (h *AuthHandler) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	var req dto.SwitchOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if verrs := req.Validate(); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verrs})
		return
	}
	orgID := uuid.MustParse(req.OrganizationID)

	tc, err := h.gate.RequireContext(r.Context(), &orgID)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	token, expiresAt, err := h.authService.IssueForContext(tc.User, &tc.Membership, tc.Role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to issue session"})
		return
	}

	h.setSessionCookie(w, token, expiresAt)
	user := dto.UserFromResolved(tc.User)
	writeJSON(w, http.StatusOK, dto.NewAuthResponse(token, expiresAt, user, &tc.Membership))
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		MaxAge:   -1,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
