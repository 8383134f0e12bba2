package registry

import (
	"sync"
)

// MemberSet is the enumerable set of addresses opted in to monitoring. It is
// an index-tracking slice plus reverse-lookup map: add and remove are O(1),
// removal swaps the last element into the vacated slot, so iteration order is
// not stable across removals. Membership only controls which addresses a
// sweep scans; it guarantees nothing about portfolio or allocation state.
type MemberSet struct {
	mu    sync.RWMutex
	index map[string]int
	list  []string
}

func NewMemberSet() *MemberSet {
	return &MemberSet{index: make(map[string]int)}
}

// Add inserts user; adding an existing member is a successful no-op. Returns
// true if the set changed.
func (m *MemberSet) Add(user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[user]; ok {
		return false
	}
	m.index[user] = len(m.list)
	m.list = append(m.list, user)
	return true
}

// Remove deletes user via swap-and-pop; removing an absent member is a
// successful no-op. Returns true if the set changed.
func (m *MemberSet) Remove(user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[user]
	if !ok {
		return false
	}
	last := len(m.list) - 1
	if i != last {
		moved := m.list[last]
		m.list[i] = moved
		m.index[moved] = i
	}
	m.list = m.list[:last]
	delete(m.index, user)
	return true
}

// Contains reports membership.
func (m *MemberSet) Contains(user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[user]
	return ok
}

// Len returns the member count.
func (m *MemberSet) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.list)
}

// At returns the member at index i, for indexed iteration.
func (m *MemberSet) At(i int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.list) {
		return "", false
	}
	return m.list[i], true
}

// List returns a snapshot copy of the current members.
func (m *MemberSet) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.list))
	copy(out, m.list)
	return out
}
