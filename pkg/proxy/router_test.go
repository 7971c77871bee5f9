package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteMatch(t *testing.T) {
	tests := []struct {
		name     string
		match    RouteMatch
		host     string
		path     string
		expected bool
	}{
		{"hostname only", RouteMatch{Hostname: "example.com"}, "example.com", "/foo/bar", true},
		{"hostname mismatch", RouteMatch{Hostname: "example.com"}, "other-example.com", "/foo/bar", false},
		{"hostname with port", RouteMatch{Hostname: "example.com"}, "example.com:8000", "/", true},
		{"path only", RouteMatch{Path: "/foo/bar"}, "example.com", "/foo/bar", true},
		{"path mismatch", RouteMatch{Path: "/foo/bar"}, "example.com", "/bar/baz", false},
		{"path is exact", RouteMatch{Path: "/foo"}, "example.com", "/foo/bar", false},
		{"both match", RouteMatch{Hostname: "example.com", Path: "/foo/bar"}, "example.com", "/foo/bar", true},
		{"both, wrong path", RouteMatch{Hostname: "example.com", Path: "/foo/bar"}, "example.com", "/bar/baz", false},
		{"both, wrong host", RouteMatch{Hostname: "example.com", Path: "/foo/bar"}, "other-example.com", "/foo/bar", false},
		{"neither set", RouteMatch{}, "example.com", "/foo/bar", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.match.Matches(tt.host, tt.path))
		})
	}
}

func TestRouteTableFirstEntryWins(t *testing.T) {
	table := NewRouteTable()
	s1 := Service{Name: "service1", Port: 8080}
	s2 := Service{Name: "service2", Port: 8080}
	s3 := Service{Name: "service3", Port: 8080}

	table.Add(RouteMatch{Hostname: "example.org"}, s1)
	table.Add(RouteMatch{Hostname: "example.com", Path: "/foo/bar"}, s2)
	table.Add(RouteMatch{Hostname: "example.com", Path: "/foo/bar"}, s3)

	svc, ok := table.Route("example.com", "/foo/bar")
	assert.True(t, ok)
	assert.Equal(t, s2, svc)

	_, ok = table.Route("example.net", "/foo/bar")
	assert.False(t, ok)
}

func TestRouteTableRemove(t *testing.T) {
	table := NewRouteTable()
	s1 := Service{Name: "service1", Port: 8080}
	s2 := Service{Name: "service2", Port: 8080}
	s3 := Service{Name: "service3", Port: 8080}

	table.Add(RouteMatch{Hostname: "example.org"}, s1)
	table.Add(RouteMatch{Hostname: "example2.com"}, s2)
	table.Add(RouteMatch{Hostname: "example3.com"}, s3)
	table.Add(RouteMatch{Hostname: "example4.com"}, s2)
	assert.Equal(t, 4, table.Len())

	table.Remove(s2)
	assert.Equal(t, 2, table.Len())

	_, ok := table.Route("example2.com", "/")
	assert.False(t, ok)
	_, ok = table.Route("example4.com", "/")
	assert.False(t, ok)

	svc, ok := table.Route("example3.com", "/")
	assert.True(t, ok)
	assert.Equal(t, s3, svc)
}
