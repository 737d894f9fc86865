package credits

import (
	"fmt"
	"net/url"
	"sync"
)

// MemoryLocation is a Location held in memory, used where there is no
// browser address bar
type MemoryLocation struct {
	mu  sync.Mutex
	url *url.URL
}

// NewMemoryLocation parses raw as the initial location
func NewMemoryLocation(raw string) (*MemoryLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", raw, err)
	}
	return &MemoryLocation{url: u}, nil
}

// Current returns a copy of the current location
func (l *MemoryLocation) Current() *url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.url == nil {
		return nil
	}
	u := *l.url
	return &u
}

// Replace swaps the current location
func (l *MemoryLocation) Replace(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u == nil {
		l.url = nil
		return
	}
	c := *u
	l.url = &c
}

// String returns the current location as a string
func (l *MemoryLocation) String() string {
	if u := l.Current(); u != nil {
		return u.String()
	}
	return ""
}
