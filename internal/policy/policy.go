// Package policy decides which remote locations may be downloaded from.
package policy

import (
	"net/url"
	"strings"

	"filedownloader/internal/apperr"
)

// Validator checks URLs against the scheme rules and the host allow-list.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	allowed []string
}

// NewValidator builds a validator. An empty allow-list permits any host.
func NewValidator(allowedDomains []string) *Validator {
	allowed := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			allowed = append(allowed, d)
		}
	}
	return &Validator{allowed: allowed}
}

// Validate parses raw and returns it when the scheme and host are permitted.
func (v *Validator) Validate(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, apperr.New(apperr.KindInvalidURL, "invalid url: empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidURL, err, "invalid url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return nil, apperr.New(apperr.KindInvalidURL, "invalid url: %q is not absolute", trimmed)
	}
	if scheme != "http" && scheme != "https" {
		return nil, apperr.New(apperr.KindSchemeNotAllowed, "only http and https are supported, got %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, apperr.New(apperr.KindInvalidURL, "invalid url: missing host")
	}
	if !v.hostAllowed(host) {
		return nil, apperr.New(apperr.KindHostNotAllowed, "host %s is not in the allow-list", host)
	}
	return u, nil
}

func (v *Validator) hostAllowed(host string) bool {
	if len(v.allowed) == 0 {
		return true
	}
	for _, domain := range v.allowed {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
