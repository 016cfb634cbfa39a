package e2etesting

import (
	"sort"

	"github.com/labstack/echo/v4"
)

type RouteInfo struct {
	Method   string
	Path     string
	HitCount int
}

// routeHits counts requests per registered echo route, so tests can assert
// which endpoints a client flow touched and which it never reached.
type routeHits struct {
	routes map[string]RouteInfo
}

func routeKey(method, path string) string {
	return method + ":" + path
}

func newRouteHits(e *echo.Echo) *routeHits {
	h := &routeHits{routes: make(map[string]RouteInfo)}
	for _, r := range e.Routes() {
		h.routes[routeKey(r.Method, r.Path)] = RouteInfo{Method: r.Method, Path: r.Path}
	}
	return h
}

// hit is called with b.mu held.
func (h *routeHits) hit(method, path string) {
	key := routeKey(method, path)
	if info, ok := h.routes[key]; ok {
		info.HitCount++
		h.routes[key] = info
	}
}

func (h *routeHits) list(covered bool) []RouteInfo {
	var out []RouteInfo
	for _, info := range h.routes {
		if (info.HitCount > 0) == covered {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].Method < out[j].Method
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// CoveredRoutes lists the routes hit at least once, with their counts.
func (b *Backend) CoveredRoutes() []RouteInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits.list(true)
}

func (b *Backend) MissingRoutes() []RouteInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits.list(false)
}

func (b *Backend) HitCount(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits.routes[routeKey(method, path)].HitCount
}
