package jsonrpc

import (
	"context"
	"sync/atomic"
)

type MethodContext[T any] interface {
	// Context is cancelled when the connection closes.
	Context() context.Context
	Get() *T
	Set(value *T)
	Peer() Conn[T]
}

func NewContext[T any](conn Conn[T], v *T) MethodContext[T] {
	c := &contextImpl[T]{
		conn: conn,
		ctx:  context.Background(),
	}
	c.v.Store(v)
	return c
}

// contextImpl keeps connection-level state shared across requests
type contextImpl[T any] struct {
	conn Conn[T]
	ctx  context.Context
	v    atomic.Pointer[T]
}

func (m *contextImpl[T]) Context() context.Context {
	return m.ctx
}

func (m *contextImpl[T]) Set(value *T) {
	m.v.Store(value)
}

func (m *contextImpl[T]) Get() *T {
	return m.v.Load()
}

func (m *contextImpl[T]) Peer() Conn[T] {
	return m.conn
}
