package websocket

import (
	"net/http"

	"github.com/imtaco/room-relay/internal/jsonrpc"
)

// ConnectionHooks allows customizing connection lifecycle behavior
type ConnectionHooks[T any] interface {
	// OnVerify is called before upgrading to WebSocket.
	// Return false to reject the connection with 401, an error gives 503.
	OnVerify(r *http.Request) (*T, bool, error)

	// OnConnect is called once the channel is writable, before any request is read.
	OnConnect(mctx jsonrpc.MethodContext[T])

	// OnDisconnect is called exactly once after the connection is closed.
	OnDisconnect(mctx jsonrpc.MethodContext[T], closeCode int)
}

// defaultHooks rejects every connection.
type defaultHooks[T any] struct{}

func (h *defaultHooks[T]) OnVerify(*http.Request) (*T, bool, error) {
	return nil, false, nil
}

func (h *defaultHooks[T]) OnConnect(jsonrpc.MethodContext[T]) {}

func (h *defaultHooks[T]) OnDisconnect(jsonrpc.MethodContext[T], int) {}
