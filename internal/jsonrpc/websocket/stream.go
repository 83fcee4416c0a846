package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/jsonrpc"
	"github.com/imtaco/room-relay/internal/log"
)

const (
	ErrBufferFull errors.Code = "buffer_full"
	ErrMarshal    errors.Code = "marshal_error"
)

const (
	pingInterval = 10 * time.Second
	pingTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second
	bufMessages  = 64
	// SDP offers with many candidates exceed the library default of 32KiB
	readLimit = 256 << 10
)

func newStream(conn *websocket.Conn, logger *log.Logger) *wsStream {
	conn.SetReadLimit(readLimit)
	ws := &wsStream{
		conn:   conn,
		chBuf:  make(chan func(context.Context) error, bufMessages),
		logger: logger,
	}
	// writes queued before Open are flushed once the pump starts
	ws.connCtx, ws.cancel = context.WithCancel(context.Background())
	ws.code.Store(int32(websocket.StatusAbnormalClosure))
	return ws
}

// wsStream wraps a WebSocket connection to implement jsonrpc.ObjectStream.
// Writes are queued and flushed by a single pump, so a slow reader only ever
// fills its own buffer.
type wsStream struct {
	conn  *websocket.Conn
	chBuf chan func(context.Context) error

	connCtx   context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	code      atomic.Int32
	logger    *log.Logger
}

// Write only fails when the stream is closed or its buffer is full. The write
// itself runs later on the pump with the connection's own context.
func (ws *wsStream) Write(ctx context.Context, obj any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ws.connCtx.Done():
		return net.ErrClosed
	default:
	}

	action := func(pumpCtx context.Context) error {
		wctx, cancel := context.WithTimeout(pumpCtx, writeTimeout)
		defer cancel()
		return wsjson.Write(wctx, ws.conn, obj)
	}

	select {
	case ws.chBuf <- action:
		return nil
	default:
		ws.close(ErrBufferFull)
		return ErrBufferFull
	}
}

// Read decodes one frame. A frame that is not JSON is reported as a parse
// error and the connection stays open.
func (ws *wsStream) Read(ctx context.Context, v any) error {
	_, data, err := ws.conn.Read(ctx)
	if err != nil {
		ws.close(err)
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(jsonrpc.ErrCodeParseError, err, "decode frame")
	}
	return nil
}

func (ws *wsStream) Open(ctx context.Context) error {
	context.AfterFunc(ctx, ws.cancel)

	go func() {
		err := ws.writePump(ws.connCtx)
		ws.close(err)
	}()

	return nil
}

func (ws *wsStream) Close() error {
	ws.close(nil)
	return nil
}

// closeCode is the websocket status the connection ended with.
func (ws *wsStream) closeCode() int {
	return int(ws.code.Load())
}

func (ws *wsStream) close(err error) {
	ws.closeOnce.Do(func() {
		peerClosed := false
		code := websocket.StatusNormalClosure

		switch {
		case err == nil:
			ws.logger.Debug("connection closed by server")
		case websocket.CloseStatus(err) != -1:
			code = websocket.CloseStatus(err)
			ws.logger.Debug("connection closed by peer", log.Int("code", int(code)))
			peerClosed = true
		case errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled),
			errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			ws.logger.Debug("connection gone")
			code = websocket.StatusAbnormalClosure
			peerClosed = true
		case errors.Is(err, ErrBufferFull):
			ws.logger.Warn("connection closed due to buffer full")
			code = websocket.StatusPolicyViolation
		default:
			ws.logger.Warn("connection closed due to error", log.Error(err))
			code = websocket.StatusAbnormalClosure
			peerClosed = true
		}
		ws.code.Store(int32(code))

		if peerClosed {
			_ = ws.conn.CloseNow()
		} else {
			// Close waits for the peer's reply, keep it off the caller's path
			go func() { _ = ws.conn.Close(code, "bye") }()
		}
		ws.cancel()
	})
}

func (ws *wsStream) wait() {
	<-ws.connCtx.Done()
}

func (ws *wsStream) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ws.ping(ctx); err != nil {
				return err
			}
		case action := <-ws.chBuf:
			if err := action(ctx); err != nil {
				return err
			}
		}
	}
}

func (ws *wsStream) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	return ws.conn.Ping(ctx)
}
