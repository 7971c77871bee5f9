package proxy

import (
	"net"
	"sync"
)

// Service is an upstream application listening on a port of this host
type Service struct {
	Name string
	Port int
}

// RouteMatch selects requests by hostname and path. An empty field is unset.
// Every set field must match exactly; a match with neither set never
// matches anything.
type RouteMatch struct {
	Hostname string
	Path     string
}

// Matches reports whether the request host and path satisfy m. Any port in
// host is ignored.
func (m RouteMatch) Matches(host, path string) bool {
	if m.Hostname == "" && m.Path == "" {
		return false
	}
	if m.Hostname != "" && m.Hostname != stripPort(host) {
		return false
	}
	if m.Path != "" && m.Path != path {
		return false
	}
	return true
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

type route struct {
	match   RouteMatch
	service Service
}

// RouteTable is an ordered list of routes. The oldest matching entry wins.
type RouteTable struct {
	mu     sync.RWMutex
	routes []route
}

// NewRouteTable creates an empty table
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Add appends a route
func (t *RouteTable) Add(match RouteMatch, service Service) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, route{match: match, service: service})
}

// Remove deletes every route pointing at service
func (t *RouteTable) Remove(service Service) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.routes[:0]
	for _, r := range t.routes {
		if r.service != service {
			kept = append(kept, r)
		}
	}
	t.routes = kept
}

// Route returns the service of the first route matching host and path
func (t *RouteTable) Route(host, path string) (Service, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.routes {
		if r.match.Matches(host, path) {
			return r.service, true
		}
	}
	return Service{}, false
}

// Len returns the number of routes
func (t *RouteTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}
