package filebot

import (
	"sync"
	"time"
)

// Pending action kinds. A user has at most one pending action.
const (
	ActionAddDB     = "add_db"
	ActionAddSub    = "add_sub"
	ActionSetCover  = "set_cover"
	ActionBroadcast = "broadcast"
	ActionPassword  = "password"
)

// PendingAction is what the bot expects from a user's next message.
// For ActionPassword, Arg is the sensitive command waiting on the password.
type PendingAction struct {
	Kind    string
	Arg     string
	Expires time.Time
}

// BatchDraft is a batch being assembled by an admin.
type BatchDraft struct {
	Keyword    string
	MessageIDs []int
	Started    time.Time
}

// State is the bot's process-local memory: pending actions, subscription
// verifications, admin sessions and batch drafts.
type State struct {
	mu         sync.Mutex
	pending    map[int64]PendingAction
	verified   map[int64]time.Time
	sessions   map[int64]time.Time
	drafts     map[int64]*BatchDraft
	pendingTTL time.Duration
	now        func() time.Time
}

// NewState creates an empty State. Pending actions expire after pendingTTL.
func NewState(pendingTTL time.Duration) *State {
	if pendingTTL <= 0 {
		pendingTTL = 15 * time.Minute
	}
	return &State{
		pending:    make(map[int64]PendingAction),
		verified:   make(map[int64]time.Time),
		sessions:   make(map[int64]time.Time),
		drafts:     make(map[int64]*BatchDraft),
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

// SetPending replaces any pending action of userID.
func (s *State) SetPending(userID int64, kind, arg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = PendingAction{Kind: kind, Arg: arg, Expires: s.now().Add(s.pendingTTL)}
}

// Pending returns the live pending action of userID.
func (s *State) Pending(userID int64) (PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[userID]
	if !ok {
		return PendingAction{}, false
	}
	if !s.now().Before(p.Expires) {
		delete(s.pending, userID)
		return PendingAction{}, false
	}
	return p, true
}

// ClearPending forgets the pending action of userID.
func (s *State) ClearPending(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
}

// MarkVerified records that userID passed the subscription check now.
func (s *State) MarkVerified(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[userID] = s.now()
}

// VerifiedAt returns when userID last passed the subscription check.
func (s *State) VerifiedAt(userID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.verified[userID]
	return t, ok
}

// OpenSession marks userID as password-authenticated for ttl.
func (s *State) OpenSession(userID int64, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = s.now().Add(ttl)
}

// HasSession reports whether userID holds a live admin session.
func (s *State) HasSession(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.sessions[userID]
	return ok && s.now().Before(exp)
}

// StartDraft begins a new batch for userID, discarding any previous draft.
func (s *State) StartDraft(userID int64, keyword string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[userID] = &BatchDraft{Keyword: keyword, Started: s.now()}
}

// HasDraft reports whether userID is assembling a batch.
func (s *State) HasDraft(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[userID]
	return ok
}

// AppendDraft adds a message id to the draft of userID and returns the new
// file count.
func (s *State) AppendDraft(userID int64, messageID int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[userID]
	if !ok {
		return 0, false
	}
	d.MessageIDs = append(d.MessageIDs, messageID)
	return len(d.MessageIDs), true
}

// TakeDraft removes and returns the draft of userID.
func (s *State) TakeDraft(userID int64) (BatchDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[userID]
	if !ok {
		return BatchDraft{}, false
	}
	delete(s.drafts, userID)
	return *d, true
}

// Prune drops expired pending actions and admin sessions, and
// verifications older than maxVerifiedAge. It returns the number of
// entries removed.
func (s *State) Prune(now time.Time, maxVerifiedAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.pending {
		if !now.Before(p.Expires) {
			delete(s.pending, id)
			n++
		}
	}
	for id, exp := range s.sessions {
		if !now.Before(exp) {
			delete(s.sessions, id)
			n++
		}
	}
	if maxVerifiedAge > 0 {
		for id, t := range s.verified {
			if now.Sub(t) > maxVerifiedAge {
				delete(s.verified, id)
				n++
			}
		}
	}
	return n
}
