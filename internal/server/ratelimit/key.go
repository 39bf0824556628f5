package ratelimit

import "strings"

// Subject identifies the caller of a request for limiting purposes.
type Subject struct {
	// UserID is set only when the request carries a verified principal.
	UserID string
	// IP is the caller's network address.
	IP string
}

// ResolveKey returns "user:<id>" for an authenticated subject, else the IP.
func ResolveKey(s Subject) string {
	if s.UserID != "" {
		return "user:" + s.UserID
	}
	return s.IP
}

// Render expands a key template. Supported placeholders:
//
//	{principal}  ResolveKey(s)
//	{user}       the user id, or the IP when anonymous
//	{ip}         the caller IP
func Render(template string, s Subject) string {
	user := s.UserID
	if user == "" {
		user = s.IP
	}
	r := strings.NewReplacer(
		"{principal}", ResolveKey(s),
		"{user}", user,
		"{ip}", s.IP,
	)
	return r.Replace(template)
}
