package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/api/dto"
	"github.com/hugh/orgauth/internal/api/middleware"
	"github.com/hugh/orgauth/internal/store"
)

type OrganizationHandler struct {
	store  *store.Store
	logger *slog.Logger
}

func NewOrganizationHandler(st *store.Store, logger *slog.Logger) *OrganizationHandler {
	return &OrganizationHandler{store: st, logger: logger}
}

// writeStoreError maps administrative store failures to HTTP responses.
func (h *OrganizationHandler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Not found", Code: "not_found"})
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, store.ErrUnknownPermission),
		errors.Is(err, store.ErrWildcardDenied):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "invalid_input"})
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrSystemRole),
		errors.Is(err, store.ErrCustomRolesDisabled),
		errors.Is(err, store.ErrOwnerImmutable),
		errors.Is(err, store.ErrRoleInUse):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Code: "conflict"})
	default:
		h.logger.Error("organization store failure", "op", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error", Code: "internal"})
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid " + name + " format"})
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /api/v1/organizations
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if verrs := req.Validate(); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verrs})
		return
	}

	membership, err := h.store.CreateOrganization(r.Context(), req.ToStore(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeStoreError(w, "create organization", err)
		return
	}

	h.logger.Info("organization created", "org_id", membership.OrganizationID, "user_id", membership.UserID)
	writeJSON(w, http.StatusCreated, dto.MembershipFromStore(*membership))
}

// Get handles GET /api/v1/organizations/{orgID}
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc := middleware.GetTenant(r.Context())
	writeJSON(w, http.StatusOK, dto.OrganizationFromStore(tc.Organization))
}

// ListMembers handles GET /api/v1/organizations/{orgID}/members
func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	// Parse pagination
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	members, total, err := h.store.ListMembers(r.Context(), middleware.GetOrganizationID(r.Context()), pagination.PerPage, pagination.Offset())
	if err != nil {
		h.writeStoreError(w, "list members", err)
		return
	}

	out := make([]dto.MemberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, dto.MemberFromStore(m))
	}
	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       out,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: int((total + int64(pagination.PerPage) - 1) / int64(pagination.PerPage)),
	})
}

// AddMember handles POST /api/v1/organizations/{orgID}/members
func (h *OrganizationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req dto.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if verrs := req.Validate(); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verrs})
		return
	}

	var roleID *uuid.UUID
	if req.RoleID != nil {
		id := uuid.MustParse(*req.RoleID)
		roleID = &id
	}

	membership, err := h.store.AddMember(r.Context(), middleware.GetOrganizationID(r.Context()), middleware.GetUserID(r.Context()), uuid.MustParse(req.UserID), roleID)
	if err != nil {
		h.writeStoreError(w, "add member", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.MembershipFromStore(*membership))
}

// AssignRole handles PUT /api/v1/organizations/{orgID}/members/{userID}/role
func (h *OrganizationHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseIDParam(w, r, "userID")
	if !ok {
		return
	}

	var req dto.AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if verrs := req.Validate(); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verrs})
		return
	}

	orgID := middleware.GetOrganizationID(r.Context())
	if err := h.store.AssignRole(r.Context(), orgID, middleware.GetUserID(r.Context()), userID, uuid.MustParse(req.RoleID)); err != nil {
		h.writeStoreError(w, "assign role", err)
		return
	}

	h.logger.Info("role assigned", "org_id", orgID, "user_id", userID, "role_id", req.RoleID)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Role assigned"})
}

// DeactivateMember handles DELETE /api/v1/organizations/{orgID}/members/{userID}
func (h *OrganizationHandler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseIDParam(w, r, "userID")
	if !ok {
		return
	}

	orgID := middleware.GetOrganizationID(r.Context())
	if err := h.store.DeactivateMember(r.Context(), orgID, userID); err != nil {
		h.writeStoreError(w, "deactivate member", err)
		return
	}

	h.logger.Info("member deactivated", "org_id", orgID, "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// ListRoles handles GET /api/v1/organizations/{orgID}/roles
func (h *OrganizationHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context(), middleware.GetOrganizationID(r.Context()))
	if err != nil {
		h.writeStoreError(w, "list roles", err)
		return
	}

	out := make([]dto.RoleDTO, 0, len(roles))
	for i := range roles {
		out = append(out, dto.RoleFromStore(&roles[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateRole handles POST /api/v1/organizations/{orgID}/roles
func (h *OrganizationHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req dto.RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if verrs := req.Validate(); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verrs})
		return
	}

	role, err := h.store.CreateRole(r.Context(), middleware.GetOrganizationID(r.Context()), store.NewRole{
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
	}, req.StoreGrants())
	if err != nil {
		h.writeStoreError(w, "create role", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RoleFromStore(role))
}

// UpdateRoleGrants handles PUT /api/v1/organizations/{orgID}/roles/{roleID}/grants
func (h *OrganizationHandler) UpdateRoleGrants(w http.ResponseWriter, r *http.Request) {
	roleID, ok := parseIDParam(w, r, "roleID")
	if !ok {
		return
	}

	var req dto.SetGrantsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if verrs := req.Validate(); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verrs})
		return
	}

	role, err := h.store.SetRoleGrants(r.Context(), middleware.GetOrganizationID(r.Context()), roleID, req.StoreGrants())
	if err != nil {
		h.writeStoreError(w, "set role grants", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RoleFromStore(role))
}

// DeleteRole handles DELETE /api/v1/organizations/{orgID}/roles/{roleID}
func (h *OrganizationHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := parseIDParam(w, r, "roleID")
	if !ok {
		return
	}

	if err := h.store.DeleteRole(r.Context(), middleware.GetOrganizationID(r.Context()), roleID); err != nil {
		h.writeStoreError(w, "delete role", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
