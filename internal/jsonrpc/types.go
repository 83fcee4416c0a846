package jsonrpc

import (
	"context"
	"encoding/json"
	"io"
)

type Handler[T any] interface {
	// all connections created by this handler share the same method table
	Def(method string, handler MethodHandler[T])
	// OnError installs a hook that runs after every error response, notifications included.
	OnError(hook ErrorHook[T])
	NewConn(stream ObjectStream, v *T) Conn[T]
}

// Conn is the server side of one client channel. Requests are handled one at a
// time in arrival order; Notify may be called from any goroutine.
type Conn[T any] interface {
	Notify(ctx context.Context, method string, params any) error
	Open(ctx context.Context) error
	Context() MethodContext[T]
	io.Closer
}

// MethodHandler is a function that handles a JSON-RPC method
// method context is shared across all method calls for a connection
type MethodHandler[T any] func(mctx MethodContext[T], params *json.RawMessage) (any, error)

// ErrorHook observes a failed request after its error response was sent.
type ErrorHook[T any] func(mctx MethodContext[T], method string, rpcErr *Error)

type ObjectStream interface {
	Open(ctx context.Context) error
	Read(ctx context.Context, v any) error
	Write(ctx context.Context, obj any) error
	io.Closer
}
