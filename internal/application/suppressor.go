package application

import (
	"sync"

	"github.com/bnema/tabflow/internal/domain"
)

// Suppressor holds at most one pending skip marker. Set overwrites
// unconditionally: a new corrective action always supersedes an older
// pending one. Only the activation handler consumes.
type Suppressor struct {
	mu      sync.Mutex
	pending domain.SkipInfo
	set     bool
}

func NewSuppressor() *Suppressor {
	return &Suppressor{}
}

func (s *Suppressor) Set(info domain.SkipInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = info
	s.set = true
}

// Consume atomically reads and clears the pending marker.
func (s *Suppressor) Consume() (domain.SkipInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		return domain.SkipInfo{}, false
	}
	info := s.pending
	s.pending = domain.SkipInfo{}
	s.set = false
	return info, true
}

// Pending reports whether a marker is waiting without consuming it.
func (s *Suppressor) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}
