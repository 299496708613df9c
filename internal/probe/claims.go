package probe

import (
	"sync"

	"github.com/nerrad567/laurabot-hal/internal/deviceio"
	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// claimSet tracks candidates during one probe run.
//
// Serial ports open exclusively, so a port may be claimed by one class at a
// time. Ports the current bindings hold start out claimed by their class.
// Handles of pingable kinds that the current bindings hold are rechecked
// rather than reopened.
type claimSet struct {
	holding map[hal.CapabilityClass]map[hal.Candidate]hal.Handle

	mu     sync.Mutex
	owners map[hal.Candidate]hal.CapabilityClass
}

func newClaimSet(bindings map[hal.CapabilityClass]hal.Backend) *claimSet {
	s := &claimSet{
		holding: make(map[hal.CapabilityClass]map[hal.Candidate]hal.Handle),
		owners:  make(map[hal.Candidate]hal.CapabilityClass),
	}
	for class, b := range bindings {
		for _, h := range backendHandles(b) {
			if !pingable(h.Candidate) {
				continue
			}
			if s.holding[class] == nil {
				s.holding[class] = make(map[hal.Candidate]hal.Handle)
			}
			s.holding[class][h.Candidate] = h
			if exclusive(h.Candidate) {
				s.owners[h.Candidate] = class
			}
		}
	}
	return s
}

// claim reserves c for class. It fails with the owning class when another
// class already has c.
func (s *claimSet) claim(class hal.CapabilityClass, c hal.Candidate) (hal.CapabilityClass, bool) {
	if !exclusive(c) {
		return "", true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.owners[c]; ok && owner != class {
		return owner, false
	}
	s.owners[c] = class
	return "", true
}

// release gives up a claim that did not bind. Ports class holds from the
// current binding stay claimed until the rebind closes them.
func (s *claimSet) release(class hal.CapabilityClass, c hal.Candidate) {
	if !exclusive(c) {
		return
	}
	if _, ok := s.holding[class][c]; ok {
		return
	}
	s.mu.Lock()
	if s.owners[c] == class {
		delete(s.owners, c)
	}
	s.mu.Unlock()
}

// held returns the open handle the current binding of class has for c.
func (s *claimSet) held(class hal.CapabilityClass, c hal.Candidate) (hal.Handle, bool) {
	h, ok := s.holding[class][c]
	return h, ok
}

func exclusive(c hal.Candidate) bool { return c.Kind == deviceio.KindSerial }

// pingable reports whether the device behind c answers OpPing. Exec helpers
// do not; they are cheap to reopen.
func pingable(c hal.Candidate) bool {
	return c.Kind == deviceio.KindSerial || c.Kind == deviceio.KindMQTT
}
