package jsonrpc

import (
	"context"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
)

type handlerImpl[T any] struct {
	methods map[string]MethodHandler[T]
	onError ErrorHook[T]
	logger  *log.Logger
}

// NewHandler creates a method table. Methods must be defined before the first connection opens.
func NewHandler[T any](logger *log.Logger) Handler[T] {
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &handlerImpl[T]{
		methods: make(map[string]MethodHandler[T]),
		logger:  logger,
	}
}

func (s *handlerImpl[T]) Def(method string, handler MethodHandler[T]) {
	if _, ok := s.methods[method]; ok {
		panic("method already defined: " + method)
	}
	s.methods[method] = handler
}

func (s *handlerImpl[T]) OnError(hook ErrorHook[T]) {
	s.onError = hook
}

func (s *handlerImpl[T]) NewConn(stream ObjectStream, v *T) Conn[T] {
	return newConn(stream, v, s.handle, s.logger)
}

func (s *handlerImpl[T]) handle(ctx context.Context, conn *connImpl[T], req *Request) {
	s.logger.Debug("RPC request received",
		log.String("method", req.Method),
		log.Any("id", req.ID))

	handler, ok := s.methods[req.Method]
	if !ok {
		s.logger.Warn("Method not found",
			log.String("method", req.Method),
			log.Any("id", req.ID))

		rpcErr := ErrMethodNotFound(req.Method)
		_ = conn.replyError(ctx, req.ID, rpcErr)
		s.afterError(conn, req.Method, rpcErr)
		return
	}

	result, err := handler(conn.mctx, req.Params)
	if err := s.reply(ctx, conn, req, result, err); err != nil {
		s.logger.Warn("Failed to send RPC reply",
			log.String("method", req.Method),
			log.Any("id", req.ID),
			log.Error(err))
	}
}

func (s *handlerImpl[T]) reply(
	ctx context.Context,
	conn *connImpl[T],
	req *Request,
	result any,
	err error,
) error {
	if err == nil {
		return conn.reply(ctx, req.ID, result)
	}

	rpcErr, ok := errors.As[*Error](err)
	var sent *Error
	if ok {
		sent = *rpcErr
		s.logger.Debug("RPC handler returned error",
			log.String("method", req.Method),
			log.Any("id", req.ID),
			log.Int64("error_code", sent.Code),
			log.String("error_message", sent.Message))
	} else {
		s.logger.Error("RPC handler returned unexpected error",
			log.String("method", req.Method),
			log.Any("id", req.ID),
			log.Error(err))
		// do not disclose internal error details to client
		sent = ErrInternal("unknown error")
	}

	replyErr := conn.replyError(ctx, req.ID, sent)
	s.afterError(conn, req.Method, sent)
	return replyErr
}

// afterError runs the error hook once the error response has been queued.
func (s *handlerImpl[T]) afterError(conn *connImpl[T], method string, rpcErr *Error) {
	if s.onError != nil {
		s.onError(conn.mctx, method, rpcErr)
	}
}
