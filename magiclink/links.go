package magiclink

import (
	"errors"
	"net/url"
	"strings"
)

// VerifyPath is the landing route the emailed link points at.
const VerifyPath = "/parent/auth/verify"

var ErrNoLinkOrigin = errors.New("no trusted origin for magic link")

// LinkBuilder constructs redemption URLs. A forwarded host is only honoured
// when it is allow-listed and the request Host header is never consulted.
type LinkBuilder struct {
	publicBaseURL string
	trustedHosts  map[string]struct{}
}

func NewLinkBuilder(publicBaseURL string, trustedHosts []string) *LinkBuilder {
	hosts := make(map[string]struct{}, len(trustedHosts))
	for _, h := range trustedHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return &LinkBuilder{publicBaseURL: strings.TrimRight(publicBaseURL, "/"), trustedHosts: hosts}
}

// Build returns the link for slug and raw.
func (b *LinkBuilder) Build(forwardedProto, forwardedHost, slug, raw string) (string, error) {
	origin := ""
	host := strings.ToLower(strings.TrimSpace(firstValue(forwardedHost)))
	if _, ok := b.trustedHosts[host]; ok && host != "" {
		proto := strings.ToLower(strings.TrimSpace(firstValue(forwardedProto)))
		if proto != "http" {
			proto = "https"
		}
		origin = proto + "://" + host
	} else if b.publicBaseURL != "" {
		origin = b.publicBaseURL
	}
	if origin == "" {
		return "", ErrNoLinkOrigin
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return "", ErrNoLinkOrigin
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + slug + VerifyPath
	u.RawQuery = url.Values{"token": {raw}}.Encode()
	return u.String(), nil
}

// firstValue takes the client-most entry of a comma separated proxy header.
func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		return v[:i]
	}
	return v
}
