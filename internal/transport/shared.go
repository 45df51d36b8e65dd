package transport

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Shared reference-counts one backend connection across concurrently
// running views. The connection is dialed on the first Acquire and torn
// down only when the last holder releases it, so one view stopping does
// not disconnect the others.
type Shared struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	refs   int
	client *Client
}

func NewShared(cfg Config, logger zerolog.Logger) *Shared {
	return &Shared{cfg: cfg, logger: logger}
}

// Acquire returns the shared client, starting it on first use.
func (s *Shared) Acquire(ctx context.Context) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		s.client = NewClient(s.cfg, s.logger)
		s.client.Start(ctx)
	}
	s.refs++
	return s.client
}

// Release drops one reference; the connection closes when the last one
// goes. Releasing with no outstanding reference is a no-op.
func (s *Shared) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 && s.client != nil {
		client := s.client
		s.client = nil
		// Stop waits for the connect loop; do it off the lock path.
		go client.Stop()
	}
}

// Refs reports the current holder count.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}
