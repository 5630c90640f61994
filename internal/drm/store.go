package drm

// SessionItemID uniquely identifies a session item within a controller.
type SessionItemID string

// SessionState is the ordered lifecycle of a session item. Transitions only
// ever move forward; StateFailed is terminal.
type SessionState int

const (
	// StateAccessGranted: CDM access succeeded, no session yet.
	StateAccessGranted SessionState = iota + 1
	// StateSessionCreated: a session object is attached.
	StateSessionCreated
	// StateRequestGenerated: the request-generation call has been issued.
	// A session item enters this state at most once and never leaves it
	// backwards, which is what makes replayed encrypted signals no-ops.
	StateRequestGenerated
	// StateLicenseExchanged: a license response was fed into the session.
	StateLicenseExchanged
	// StateFailed: a fatal error ended this item's lifecycle.
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateAccessGranted:
		return "access-granted"
	case StateSessionCreated:
		return "session-created"
	case StateRequestGenerated:
		return "request-generated"
	case StateLicenseExchanged:
		return "license-exchanged"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionItem tracks one (CDM, session) pair. The CDM reference is shared
// across items; the session is owned and optional until created.
type SessionItem struct {
	ID        SessionItemID
	KeySystem KeySystem
	Access    AccessHandle
	CDM       CDM
	Session   Session
	State     SessionState
}

// SessionStore is the persistence abstraction for session items. It keys
// items by identifier and keeps an explicit active pointer instead of relying
// on append order. Implementations are not safe for concurrent use; the
// Controller serializes access.
type SessionStore interface {
	Get(id SessionItemID) (*SessionItem, bool)
	Put(item *SessionItem)
	List() []*SessionItem
	Active() (*SessionItem, bool)
	SetActive(id SessionItemID)
	Clear()
}

// InMemorySessionStore is the in-memory implementation of SessionStore.
type InMemorySessionStore struct {
	items  map[SessionItemID]*SessionItem
	order  []SessionItemID
	active SessionItemID
}

// NewInMemorySessionStore returns a new empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		items: make(map[SessionItemID]*SessionItem),
	}
}

// Get implements SessionStore.Get.
func (s *InMemorySessionStore) Get(id SessionItemID) (*SessionItem, bool) {
	item, ok := s.items[id]
	return item, ok
}

// Put implements SessionStore.Put. Inserting an existing ID replaces the
// item without changing its position.
func (s *InMemorySessionStore) Put(item *SessionItem) {
	if _, exists := s.items[item.ID]; !exists {
		s.order = append(s.order, item.ID)
	}
	s.items[item.ID] = item
}

// List implements SessionStore.List, in insertion order.
func (s *InMemorySessionStore) List() []*SessionItem {
	out := make([]*SessionItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Active implements SessionStore.Active.
func (s *InMemorySessionStore) Active() (*SessionItem, bool) {
	if s.active == "" {
		return nil, false
	}
	item, ok := s.items[s.active]
	return item, ok
}

// SetActive implements SessionStore.SetActive.
func (s *InMemorySessionStore) SetActive(id SessionItemID) {
	s.active = id
}

// Clear implements SessionStore.Clear.
func (s *InMemorySessionStore) Clear() {
	s.items = make(map[SessionItemID]*SessionItem)
	s.order = nil
	s.active = ""
}
