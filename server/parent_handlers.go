package server

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/tutorhub-auth/magiclink"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/throttle"
	"github.com/rs/zerolog/log"
)

type magicLinkRequestBody struct {
	Email string `json:"email"`
}

type magicLinkThrottledBody struct {
	Issued     bool   `json:"issued"`
	Reason     string `json:"reason"`
	RetryAfter int    `json:"retryAfter"`
}

// MagicLinkRequestHandler issues a sign-in link. The response does not reveal
// whether the email belongs to a parent.
func (s *Server) MagicLinkRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body magicLinkRequestBody
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := s.deps.Issuer.RequestMagicLink(r.Context(), magiclink.IssueRequest{
			TenantSlug:     r.PathValue("tenant"),
			Email:          body.Email,
			SourceAddress:  s.sourceAddress(r),
			ForwardedProto: r.Header.Get("X-Forwarded-Proto"),
			ForwardedHost:  r.Header.Get("X-Forwarded-Host"),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		if !res.Issued {
			retryAfter := throttle.Decision{RetryAfter: res.RetryAfter}.RetryAfterSeconds()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, magicLinkThrottledBody{
				Issued:     false,
				Reason:     res.Reason,
				RetryAfter: retryAfter,
			})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// MagicLinkConsumeHandler redeems a token for API clients. Every outcome is a
// 200 with {ok, redirectTo | reason}.
func (s *Server) MagicLinkConsumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.consume(w, r)
		writeJSON(w, http.StatusOK, res)
	}
}

// ParentVerifyHandler is the landing page the emailed link points at.
func (s *Server) ParentVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.consume(w, r)
		if res.OK {
			redirectSuccess(w, r, res.RedirectTo)
			return
		}
		redirectWithError(w, r, "/"+url.PathEscape(tenants.NormaliseSlug(r.PathValue("tenant")))+pathParentLogin, string(res.Reason))
	}
}

// consume runs the consumer and, on success, sets the session cookie.
func (s *Server) consume(w http.ResponseWriter, r *http.Request) magiclink.ConsumeResult {
	slug := r.PathValue("tenant")
	res := s.deps.Consumer.ConsumeMagicLink(r.Context(), slug, r.URL.Query().Get("token"))
	if !res.OK {
		return res
	}

	raw, err := s.deps.Codec.Encode(res.Session)
	if err != nil {
		log.Error().Err(err).Str("tenant", slug).Msg("magic link consume: encode session")
		return magiclink.ConsumeResult{Reason: magiclink.ReasonFailed}
	}
	s.SetSessionCookie(w, r, raw, res.Session)
	return res
}
