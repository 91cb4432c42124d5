package chat

import "sync"

// registry is the session-scoped identity cache. It guarantees at most
// one in-memory object per message ID, per message request ID, and per
// channel URL, so every holder of a reference observes updates applied
// through later upserts. All access is serialized on one mutex; the
// inbound reader and application goroutines both mutate it.
type registry struct {
	mux             sync.Mutex
	messagesByID    map[int64]*Message
	messagesByReqID map[string]*Message
	groupChannels   map[string]*GroupChannel
	openChannels    map[string]*OpenChannel
}

func newRegistry() *registry {
	r := &registry{}
	r.reset()
	return r
}

func (r *registry) reset() {
	r.messagesByID = make(map[int64]*Message)
	r.messagesByReqID = make(map[string]*Message)
	r.groupChannels = make(map[string]*GroupChannel)
	r.openChannels = make(map[string]*OpenChannel)
}

// UpsertMessage folds candidate into the cache. When an entry already
// exists under the candidate's message ID, or under its request ID if
// the ID is unset, that entry is overwritten in place and returned;
// otherwise the candidate itself is stored under every key it carries.
func (r *registry) UpsertMessage(candidate *Message) *Message {
	r.mux.Lock()
	defer r.mux.Unlock()

	var existing *Message
	if candidate.MessageID != 0 {
		existing = r.messagesByID[candidate.MessageID]
	}
	if existing == nil && candidate.RequestID != "" {
		existing = r.messagesByReqID[candidate.RequestID]
	}

	if existing == nil {
		r.index(candidate)
		return candidate
	}

	existing.overwrite(candidate)
	// The ack may have attached the server ID to a request-ID-only
	// entry; reindex so both keys resolve to the same object.
	r.index(existing)
	return existing
}

func (r *registry) index(m *Message) {
	if m.MessageID != 0 {
		r.messagesByID[m.MessageID] = m
	}
	if m.RequestID != "" {
		r.messagesByReqID[m.RequestID] = m
	}
}

// RemoveMessage drops both index entries for the given ID. Removing an
// absent ID is a no-op.
func (r *registry) RemoveMessage(messageID int64) {
	r.mux.Lock()
	defer r.mux.Unlock()

	m, ok := r.messagesByID[messageID]
	if !ok {
		return
	}
	delete(r.messagesByID, messageID)
	if m.RequestID != "" {
		delete(r.messagesByReqID, m.RequestID)
	}
}

func (r *registry) MessageByID(messageID int64) (*Message, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	m, ok := r.messagesByID[messageID]
	return m, ok
}

func (r *registry) MessageByRequestID(reqID string) (*Message, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	m, ok := r.messagesByReqID[reqID]
	return m, ok
}

// UpsertGroupChannel folds candidate into the cache by channel URL.
func (r *registry) UpsertGroupChannel(candidate *GroupChannel) *GroupChannel {
	r.mux.Lock()
	defer r.mux.Unlock()

	existing, ok := r.groupChannels[candidate.URL]
	if !ok {
		r.groupChannels[candidate.URL] = candidate
		return candidate
	}
	existing.overwrite(candidate)
	return existing
}

// UpsertOpenChannel folds candidate into the cache by channel URL.
func (r *registry) UpsertOpenChannel(candidate *OpenChannel) *OpenChannel {
	r.mux.Lock()
	defer r.mux.Unlock()

	existing, ok := r.openChannels[candidate.URL]
	if !ok {
		r.openChannels[candidate.URL] = candidate
		return candidate
	}
	existing.overwrite(candidate)
	return existing
}

func (r *registry) GroupChannel(url string) (*GroupChannel, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	ch, ok := r.groupChannels[url]
	return ch, ok
}

func (r *registry) OpenChannel(url string) (*OpenChannel, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	ch, ok := r.openChannels[url]
	return ch, ok
}

// RemoveChannel erases the cached channel for a URL in both caches.
func (r *registry) RemoveChannel(url string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	delete(r.groupChannels, url)
	delete(r.openChannels, url)
}

// Clear wipes all session-scoped entries. Invoked on disconnect.
func (r *registry) Clear() {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.reset()
}
