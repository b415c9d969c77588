package service

import "strings"

// Actor identifies the admin performing a moderation operation.
type Actor struct {
	ID   uint
	Role string
	IP   string
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}
