package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/tutorhub-auth/auth"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/users"
)

type loginRequestBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Tenant    *tenants.Tenant `json:"tenant"`
	User      users.Profile   `json:"user"`
	Role      users.Role      `json:"role"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Token     string          `json:"token"` // For Authorization: Bearer clients
}

func (s *Server) StaffLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginRequestBody
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := s.deps.Auth.Login(r.Context(), auth.LoginRequest{
			TenantSlug: r.PathValue("tenant"),
			Email:      body.Email,
			Password:   body.Password,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		s.SetSessionCookie(w, r, res.Token, res.Session)
		writeJSON(w, http.StatusOK, sessionResponse{
			Tenant:    res.Tenant,
			User:      res.User.Profile(),
			Role:      res.Session.Role,
			ExpiresAt: res.Session.ExpiresAt,
			Token:     res.Token,
		})
	}
}

func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request, ac *auth.AuthorizedContext) {
	if err := s.deps.Auth.Logout(r.Context(), ac.Session.ID); err != nil {
		writeError(w, r, err)
		return
	}
	s.ClearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request, ac *auth.AuthorizedContext) {
	writeJSON(w, http.StatusOK, ac)
}
