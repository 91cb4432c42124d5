package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type orderHandler struct {
	ConnectionHandlerAdapter
	mark func()
}

func (h *orderHandler) ReconnectStarted() { h.mark() }

// Handlers fire in registration order.
func TestHandlerListOrder(t *testing.T) {
	var l handlerList[ConnectionHandler]
	var calls []string

	l.add("a", &orderHandler{mark: func() { calls = append(calls, "a") }})
	l.add("b", &orderHandler{mark: func() { calls = append(calls, "b") }})
	l.add("c", &orderHandler{mark: func() { calls = append(calls, "c") }})

	l.each(func(h ConnectionHandler) { h.ReconnectStarted() })
	require.Equal(t, []string{"a", "b", "c"}, calls)
}

// Re-registering an identifier replaces the handler in place, keeping
// its position.
func TestHandlerListReplaceInPlace(t *testing.T) {
	var l handlerList[ConnectionHandler]
	var calls []string

	l.add("a", &orderHandler{mark: func() { calls = append(calls, "a1") }})
	l.add("b", &orderHandler{mark: func() { calls = append(calls, "b") }})
	l.add("a", &orderHandler{mark: func() { calls = append(calls, "a2") }})

	l.each(func(h ConnectionHandler) { h.ReconnectStarted() })
	require.Equal(t, []string{"a2", "b"}, calls)
}

// Removing an unknown identifier is a no-op; removing a known one
// stops its delivery.
func TestHandlerListRemove(t *testing.T) {
	var l handlerList[ConnectionHandler]
	var calls []string

	l.add("a", &orderHandler{mark: func() { calls = append(calls, "a") }})
	l.remove("missing")
	l.remove("a")

	l.each(func(h ConnectionHandler) { h.ReconnectStarted() })
	require.Empty(t, calls)
}

// A panicking handler does not starve the ones registered after it.
func TestHandlerListPanicIsolation(t *testing.T) {
	var l handlerList[ConnectionHandler]
	var calls []string

	l.add("boom", &orderHandler{mark: func() { panic("handler bug") }})
	l.add("after", &orderHandler{mark: func() { calls = append(calls, "after") }})

	require.NotPanics(t, func() {
		l.each(func(h ConnectionHandler) { h.ReconnectStarted() })
	})
	require.Equal(t, []string{"after"}, calls)
}
