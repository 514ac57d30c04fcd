package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/orgauth/internal/api/dto"
	"github.com/hugh/orgauth/internal/api/middleware"
	"github.com/hugh/orgauth/internal/api/validation"
	"github.com/hugh/orgauth/internal/authz"
	"github.com/hugh/orgauth/internal/store"
)

// MeHandler serves the caller's own identity and tenant state.
type MeHandler struct {
	gate  *authz.Gate
	store *store.Store
}

func NewMeHandler(gate *authz.Gate, st *store.Store) *MeHandler {
	return &MeHandler{gate: gate, store: st}
}

// Get handles GET /api/v1/me
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	writeJSON(w, http.StatusOK, dto.UserFromResolved(user))
}

// Organizations handles GET /api/v1/me/organizations
func (h *MeHandler) Organizations(w http.ResponseWriter, r *http.Request) {
	memberships, err := h.store.ListUserOrganizations(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Failed to list organizations", Code: "store_unavailable"})
		return
	}

	out := make([]dto.MembershipDTO, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, dto.MembershipFromStore(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// Context handles GET /api/v1/me/context. A caller without an active
// membership in the target organization gets a null context.
func (h *MeHandler) Context(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganizationParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid organization ID", Code: "invalid_organization_id"})
		return
	}

	tc, err := h.gate.GetServerUserWithOrganization(r.Context(), orgID)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	var body struct {
		Context *dto.ContextResponse `json:"context"`
	}
	if tc != nil {
		resp := dto.ContextFromTenant(tc)
		body.Context = &resp
	}
	writeJSON(w, http.StatusOK, body)
}

// Permission handles GET /api/v1/me/permissions/{permission}
func (h *MeHandler) Permission(w http.ResponseWriter, r *http.Request) {
	permission := chi.URLParam(r, "permission")
	if !validation.IsValidPermissionName(permission) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid permission name", Code: "invalid_permission"})
		return
	}
	orgID, err := middleware.OrganizationParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid organization ID", Code: "invalid_organization_id"})
		return
	}

	allowed, err := h.gate.HasPermission(r.Context(), permission, orgID)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	resp := dto.PermissionCheckResponse{Permission: permission, Allowed: allowed}
	if orgID != nil {
		resp.OrganizationID = orgID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
