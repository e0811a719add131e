package http

import (
	"net/http"
	"strings"
)

// HeaderUserID names the user a request acts for. Authentication happens
// in front of this service; the header is trusted as given.
const HeaderUserID = "X-User-ID"

const maxUserIDLength = 128

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// userFrom resolves the acting user, falling back to the default user.
// It returns "" for an id that is too long to be real.
func (s *Server) userFrom(r *http.Request) string {
	id := sanitizeInput(r.Header.Get(HeaderUserID))
	if id == "" {
		return s.defaultUser
	}
	if len(id) > maxUserIDLength {
		return ""
	}
	return id
}
