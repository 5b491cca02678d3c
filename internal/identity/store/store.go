package store

import (
	"sync"

	"idcapture/internal/identity/models"
	id "idcapture/pkg/domain"
	dErrors "idcapture/pkg/domain-errors"
)

// Reader is the read-only facet handed to presentation collaborators.
type Reader interface {
	Snapshot() models.Session
	Subscribe(fn func(models.Session)) (unsubscribe func())
}

// Store holds the single identity session of this process. Every write is
// applied atomically and then published to subscribers as a snapshot.
//
// Subscribers run synchronously on the writing goroutine, in write order, and
// must not write to the store.
type Store struct {
	// writeMu orders write+notify pairs so subscribers observe versions in order.
	writeMu sync.Mutex

	mu      sync.RWMutex
	session models.Session
	subs    map[int]func(models.Session)
	nextID  int
}

// New constructs a store holding the empty session for flowID.
func New(flowID id.FlowID) *Store {
	return &Store{
		session: models.NewSession(flowID),
		subs:    make(map[int]func(models.Session)),
	}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Subscribe registers fn for every change and returns a function removing it.
func (s *Store) Subscribe(fn func(models.Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	subID := s.nextID
	s.nextID++
	s.subs[subID] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, subID)
	}
}

// Update applies fn atomically. fn reports whether it changed anything;
// unchanged sessions are not republished.
func (s *Store) Update(fn func(*models.Session) bool) models.Session {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !fn(&s.session) {
		snap := s.session.Clone()
		s.mu.Unlock()
		return snap
	}
	s.session.Version++
	snap := s.session.Clone()
	subs := make([]func(models.Session), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap.Clone())
	}
	return snap
}

// SetStep moves the session to step and clears the error.
func (s *Store) SetStep(step models.Step) error {
	if !step.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown step "+step.String())
	}
	s.Update(func(sess *models.Session) bool {
		if sess.CurrentStep == step && sess.LastError == "" {
			return false
		}
		sess.CurrentStep = step
		sess.LastError = ""
		return true
	})
	return nil
}

// PutArtifact stores a, replacing any artifact for the same purpose.
func (s *Store) PutArtifact(a *models.Artifact) error {
	if a == nil || !a.Purpose.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "artifact with a valid purpose required")
	}
	s.Update(func(sess *models.Session) bool {
		sess.Artifacts[a.Purpose] = a
		return true
	})
	return nil
}

func (s *Store) SetConsent(granted bool) {
	s.Update(func(sess *models.Session) bool {
		if sess.BiometricConsent == granted {
			return false
		}
		sess.BiometricConsent = granted
		return true
	})
}

func (s *Store) SetLoading(loading bool) {
	s.Update(func(sess *models.Session) bool {
		if sess.IsLoading == loading {
			return false
		}
		sess.IsLoading = loading
		return true
	})
}

// SetError records a message key for the presentation layer.
func (s *Store) SetError(key string) {
	s.Update(func(sess *models.Session) bool {
		if sess.LastError == key {
			return false
		}
		sess.LastError = key
		return true
	})
}

func (s *Store) ClearError() {
	s.SetError("")
}

// Reset restores the empty session, keeping the flow ID. Resetting an empty
// session is a no-op.
func (s *Store) Reset() models.Session {
	return s.Update(func(sess *models.Session) bool {
		if isInitial(*sess) {
			return false
		}
		fresh := models.NewSession(sess.FlowID)
		fresh.Version = sess.Version
		*sess = fresh
		return true
	})
}

func isInitial(sess models.Session) bool {
	return sess.CurrentStep == models.StepOnboarding &&
		len(sess.Artifacts) == 0 &&
		!sess.BiometricConsent &&
		!sess.IsLoading &&
		sess.LastError == ""
}

var _ Reader = (*Store)(nil)
