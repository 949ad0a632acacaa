package sshsession

import "fmt"

// UrlResolver produces the observer endpoint URL for a session name. It is a
// collaborator-facing helper only — the HTTP/observer-socket transport
// itself lives outside the core.
type UrlResolver struct {
	Port int
}

// NewUrlResolver creates a resolver that addresses the observer socket on
// the given local port.
func NewUrlResolver(port int) *UrlResolver {
	return &UrlResolver{Port: port}
}

// ObserverUrl returns the observer endpoint URL for name.
func (u *UrlResolver) ObserverUrl(name string) string {
	return fmt.Sprintf("http://localhost:%d/session/%s", u.Port, name)
}
