package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hugh/orgauth/internal/api/dto"
	"github.com/hugh/orgauth/internal/authz"
)

// AuthErrorStatus maps an authorization failure to its HTTP status, client
// message and machine-readable code.
func AuthErrorStatus(err error) (int, string, string) {
	switch authz.KindOf(err) {
	case authz.KindUnauthenticated:
		return http.StatusUnauthorized, "Authentication required", "unauthenticated"
	case authz.KindNoContext:
		return http.StatusConflict, "Select an organization first", "organization_required"
	case authz.KindNotFound:
		return http.StatusForbidden, "Not a member of this organization", "not_a_member"
	case authz.KindPermissionDenied:
		return http.StatusForbidden, "Permission denied", "forbidden"
	case authz.KindStore:
		return http.StatusServiceUnavailable, "Service temporarily unavailable", "store_unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error", "internal"
	}
}

func WriteAuthError(w http.ResponseWriter, err error) {
	status, msg, code := AuthErrorStatus(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
