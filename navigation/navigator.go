package navigation

import "sync"

const LoginPath = "/login"

// Navigator is implemented by the host and moves the user to another view.
type Navigator interface {
	Navigate(path string)
}

type Func func(path string)

func (f Func) Navigate(path string) {
	if f != nil {
		f(path)
	}
}

type nop struct{}

func (nop) Navigate(string) {}

func Nop() Navigator {
	return nop{}
}

// History records every navigation, for hosts without a router and for tests.
type History struct {
	mu    sync.Mutex
	paths []string
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Navigate(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paths = append(h.paths, path)
}

func (h *History) Paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

// Current returns the last visited path, or "" before any navigation.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.paths) == 0 {
		return ""
	}
	return h.paths[len(h.paths)-1]
}
