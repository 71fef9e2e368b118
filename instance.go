package mockproxy

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode governs what the mock handler does when no rule matches a request.
type Mode int

const (
	// ModeMock answers every unmatched request with 404.
	ModeMock Mode = iota
	// ModeProxy forwards every unmatched request to the upstream named by
	// its Host header.
	ModeProxy
)

func (m Mode) String() string {
	switch m {
	case ModeProxy:
		return "proxy"
	default:
		return "mock"
	}
}

// ParseMode parses the --mode flag/config value. Unrecognized values fall
// back to ModeMock.
func ParseMode(s string) Mode {
	if s == "proxy" {
		return ModeProxy
	}
	return ModeMock
}

// newInstanceID generates a time-ordered, sortable, collision-resistant
// instance identifier.
func newInstanceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the system entropy source is broken, and
		// the random v4 generators panic in that case; fall back to a
		// nanosecond timestamp rather than panic in a request path.
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return id.String()
}

// sequentialState is the process-wide mutable cell: at most one active
// instance, holding its id and ordered rule list. Guarded by a single
// RWMutex — the mock handler and the control handler's validation path
// take the shared lock, the control handler's mutation path takes the
// exclusive lock.
type sequentialState struct {
	mu          sync.RWMutex
	hasInstance bool
	instanceID  string
	rules       []ruleEntry
	nextSeq     uint64
}

func newSequentialState() *sequentialState {
	return &sequentialState{}
}

// createInstance replaces whatever instance exists with a fresh, empty one
// and returns its id.
func (s *sequentialState) createInstance() string {
	id := newInstanceID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasInstance = true
	s.instanceID = id
	s.rules = nil
	return id
}

// instanceMatches reports whether id is the currently active instance.
func (s *sequentialState) instanceMatches(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasInstance && s.instanceID == id
}

// installRule appends rule to the active instance and re-sorts the rule
// list, provided id still names the active instance. Re-checks the id
// under the exclusive lock in case CreateInstance raced in between the
// caller's validation read and this call. Returns false if id is stale.
func (s *sequentialState) installRule(id string, rule Rule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasInstance || s.instanceID != id {
		return false
	}
	s.nextSeq++
	s.rules = append(s.rules, ruleEntry{rule: rule, priority: priority(rule), seq: s.nextSeq})
	sortRuleEntries(s.rules)
	return true
}

// snapshotRules returns a copy of the active rule list, safe to read
// without holding any lock, and releases the lock before returning.
func (s *sequentialState) snapshotRules() []ruleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]ruleEntry, len(s.rules))
	copy(cp, s.rules)
	return cp
}
