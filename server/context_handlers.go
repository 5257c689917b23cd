package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/tutorhub-auth/auth"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/users"
)

type areaContext struct {
	Area             string          `json:"area"`
	Tenant           *tenants.Tenant `json:"tenant"`
	UserID           string          `json:"userId"`
	Name             string          `json:"name,omitempty"`
	Role             users.Role      `json:"role"`
	ParentID         string          `json:"parentId,omitempty"`
	SessionExpiresAt time.Time       `json:"sessionExpiresAt"`
}

// AreaContextHandler describes the signed-in principal to an application area.
func (s *Server) AreaContextHandler(area string) ProtectedHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, ac *auth.AuthorizedContext) {
		writeJSON(w, http.StatusOK, areaContext{
			Area:             area,
			Tenant:           ac.Tenant,
			UserID:           ac.User.ID,
			Name:             ac.User.Name,
			Role:             ac.Role(),
			ParentID:         ac.Membership.ParentID,
			SessionExpiresAt: ac.Session.ExpiresAt,
		})
	}
}
