package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/etiditalex/CMFagency-sub002/database"
	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// Capability is the authorization view of one request: the member behind the
// bearer token plus their role and feature set, resolved once by
// PortalAuthMiddleware instead of per-handler membership lookups.
type Capability struct {
	MemberID uint
	Role     string
	Features map[string]bool
}

func (c Capability) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// Can reports whether the member may use a named feature. Admins can use
// everything.
func (c Capability) Can(feature string) bool {
	return c.IsAdmin() || c.Features[feature]
}

// GetCapability returns the capability resolved for the request, if any.
func GetCapability(r *http.Request) (Capability, bool) {
	cap, ok := r.Context().Value(utils.CapabilityKey).(Capability)
	return cap, ok
}

func memberIDFromClaims(claims map[string]interface{}) uint {
	rawID, ok := claims["id"]
	if !ok {
		return 0
	}
	switch v := rawID.(type) {
	case float64:
		return uint(v)
	case int:
		return uint(v)
	case int64:
		return uint(v)
	case string:
		var n uint
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

// PortalAuthMiddleware validates the bearer token, loads the member row and
// injects a Capability into the request context.
func PortalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
			return
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

		_, claims, err := utils.ValidateAccessToken(tokenStr)
		if err != nil {
			msg := "Invalid token"
			if strings.Contains(err.Error(), "expired") {
				msg = "Your session has expired, please sign in again"
			}
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: msg})
			return
		}

		memberID := memberIDFromClaims(claims)
		if memberID == 0 {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Invalid token"})
			return
		}

		var member models.Member
		if err := database.DB.First(&member, memberID).Error; err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Member not found"})
			return
		}
		if !member.Active {
			utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Account disabled"})
			return
		}

		features := make(map[string]bool, len(member.Features))
		for _, f := range member.Features {
			features[f] = true
		}
		cap := Capability{MemberID: member.ID, Role: member.Role, Features: features}

		ctx := context.WithValue(r.Context(), utils.MemberIDKey, member.ID)
		ctx = context.WithValue(ctx, utils.CapabilityKey, cap)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates a handler behind the admin role. Must run inside
// PortalAuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap, ok := GetCapability(r)
		if !ok || !cap.IsAdmin() {
			utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OperatorAuthMiddleware admits scheduled invocations carrying the pre-shared
// X-CRON-KEY header, or falls back to admin bearer auth. Used by the
// reconciliation sweep endpoints.
func OperatorAuthMiddleware(next http.Handler) http.Handler {
	admin := PortalAuthMiddleware(RequireAdmin(next))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cronKey := os.Getenv("CRON_KEY")
		if key := r.Header.Get("X-CRON-KEY"); key != "" && cronKey != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(cronKey)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
			return
		}
		admin.ServeHTTP(w, r)
	})
}
