package jsonrpc

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
)

type handlerFunc[T any] func(context.Context, *connImpl[T], *Request)

type connImpl[T any] struct {
	stream   ObjectStream
	mctx     *contextImpl[T]
	handler  handlerFunc[T]
	sendLock sync.Mutex
	closed   atomic.Bool
	cancel   context.CancelFunc
	logger   *log.Logger
}

func newConn[T any](
	stream ObjectStream,
	v *T,
	handler handlerFunc[T],
	logger *log.Logger,
) *connImpl[T] {
	c := &connImpl[T]{
		stream:  stream,
		handler: handler,
		logger:  logger,
	}
	c.mctx = NewContext[T](c, v).(*contextImpl[T])
	return c
}

// Open starts the read loop. Requests are dispatched one after another, so a
// connection's operations never overlap.
func (c *connImpl[T]) Open(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.mctx.ctx = ctx
	if err := c.stream.Open(ctx); err != nil {
		c.cancel()
		return err
	}

	go c.readLoop(ctx)
	return nil
}

func (c *connImpl[T]) Close() error {
	return c.close(nil)
}

func (c *connImpl[T]) Context() MethodContext[T] {
	return c.mctx
}

func (c *connImpl[T]) Notify(ctx context.Context, method string, params any) error {
	msg, err := newNotificationMessage(method, params)
	if err != nil {
		return err
	}
	return c.send(ctx, msg)
}

func (c *connImpl[T]) reply(ctx context.Context, id *ID, result any) error {
	if id == nil {
		return nil
	}
	resp, err := newResponseMessage(id, result, nil)
	if err != nil {
		return err
	}
	return c.send(ctx, resp)
}

// replyError answers a request with an error. A nil id is only sent for parse
// errors, where the request id is unknown.
func (c *connImpl[T]) replyError(ctx context.Context, id *ID, respErr *Error) error {
	if id == nil && respErr.Code != CodeParseError {
		return nil
	}
	resp, err := newResponseMessage(id, nil, respErr)
	if err != nil {
		return err
	}
	return c.send(ctx, resp)
}

func (c *connImpl[T]) close(err error) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if c.cancel != nil {
		c.cancel()
	}

	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		c.logger.Debug("jsonrpc connection closed", log.Error(err))
	}

	return c.stream.Close()
}

func (c *connImpl[T]) readLoop(ctx context.Context) {
	for {
		var m message
		err := c.stream.Read(ctx, &m)
		if errors.Is(err, ErrCodeParseError) {
			c.logger.Debug("jsonrpc parse error", log.Error(err))
			_ = c.replyError(ctx, nil, ErrParse("parse error"))
			continue
		}
		if err != nil {
			c.close(err)
			return
		}

		m.validate()

		switch m.msgType {
		case typeRequst, typeNotification:
			req := &Request{
				ID:     m.ID,
				Method: *m.Method,
				Params: m.Params,
			}
			c.handler(ctx, c, req)

		case typeResponse:
			// this side never issues calls
			c.logger.Debug("ignore response from client", log.Any("id", m.ID))

		default:
			c.logger.Debug("ignore invalid message")
			_ = c.replyError(ctx, m.ID, ErrInvalidRequest("invalid request"))
		}
	}
}

func (c *connImpl[T]) send(ctx context.Context, m *message) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	return c.stream.Write(ctx, m)
}
