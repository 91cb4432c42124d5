package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// An ack carrying the server ID folds into the request-ID-only entry:
// same object, now reachable under both keys.
func TestRegistryAckFoldsIntoPending(t *testing.T) {
	r := newRegistry()

	pending := &Message{RequestID: "req-1", Message: "hi", CreatedAt: 10}
	require.Same(t, pending, r.UpsertMessage(pending))

	acked := &Message{MessageID: 42, RequestID: "req-1", Message: "hi", CreatedAt: 12}
	got := r.UpsertMessage(acked)
	require.Same(t, pending, got)
	require.Equal(t, int64(42), pending.MessageID)
	require.Equal(t, int64(12), pending.CreatedAt)

	byID, ok := r.MessageByID(42)
	require.True(t, ok)
	require.Same(t, pending, byID)

	byReq, ok := r.MessageByRequestID("req-1")
	require.True(t, ok)
	require.Same(t, pending, byReq)
}

// Re-upserting a known ID updates the existing object in place, so
// every holder of the reference observes the new content.
func TestRegistryUpdateInPlace(t *testing.T) {
	r := newRegistry()

	original := r.UpsertMessage(&Message{MessageID: 7, Message: "before"})
	updated := r.UpsertMessage(&Message{MessageID: 7, Message: "after", UpdatedAt: 99})
	require.Same(t, original, updated)
	require.Equal(t, "after", original.Message)
	require.Equal(t, int64(99), original.UpdatedAt)
}

// An overwrite with a zero ID never erases an identity the entry
// already has.
func TestRegistryOverwritePreservesIdentity(t *testing.T) {
	r := newRegistry()

	m := r.UpsertMessage(&Message{MessageID: 9, RequestID: "req-9"})
	r.UpsertMessage(&Message{MessageID: 9, Message: "edit"})
	require.Equal(t, "req-9", m.RequestID)
	require.Equal(t, int64(9), m.MessageID)
}

// Removal clears both indexes and is idempotent.
func TestRegistryRemoveMessage(t *testing.T) {
	r := newRegistry()

	r.UpsertMessage(&Message{MessageID: 5, RequestID: "req-5"})
	r.RemoveMessage(5)

	_, ok := r.MessageByID(5)
	require.False(t, ok)
	_, ok = r.MessageByRequestID("req-5")
	require.False(t, ok)

	r.RemoveMessage(5)
	r.RemoveMessage(12345)
}

// Channels deduplicate by URL with in-place overwrite.
func TestRegistryChannelIdentity(t *testing.T) {
	r := newRegistry()

	first := r.UpsertGroupChannel(&GroupChannel{
		BaseChannel: BaseChannel{URL: "c1", Name: "before"},
	})
	second := r.UpsertGroupChannel(&GroupChannel{
		BaseChannel: BaseChannel{URL: "c1", Name: "after"},
	})
	require.Same(t, first, second)
	require.Equal(t, "after", first.Name)

	open := r.UpsertOpenChannel(&OpenChannel{
		BaseChannel: BaseChannel{URL: "c1"},
	})
	got, ok := r.OpenChannel("c1")
	require.True(t, ok)
	require.Same(t, open, got)

	r.RemoveChannel("c1")
	_, ok = r.GroupChannel("c1")
	require.False(t, ok)
	_, ok = r.OpenChannel("c1")
	require.False(t, ok)
}

// Channel runtime state survives snapshot overwrites.
func TestRegistryOverwriteKeepsRuntime(t *testing.T) {
	r := newRegistry()

	ch := r.UpsertGroupChannel(&GroupChannel{
		BaseChannel: BaseChannel{URL: "c2"},
	})
	require.True(t, ch.applyReadReceipt("bob", 100))

	r.UpsertGroupChannel(&GroupChannel{
		BaseChannel: BaseChannel{URL: "c2", Name: "renamed"},
	})
	require.Equal(t, "renamed", ch.Name)
	require.Equal(t, int64(100), ch.GetReadStatus()["bob"])
}

// Clear wipes everything.
func TestRegistryClear(t *testing.T) {
	r := newRegistry()
	r.UpsertMessage(&Message{MessageID: 1})
	r.UpsertGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	r.Clear()
	_, ok := r.MessageByID(1)
	require.False(t, ok)
	_, ok = r.GroupChannel("c1")
	require.False(t, ok)
}
