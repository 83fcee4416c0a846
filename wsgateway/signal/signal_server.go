package signal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/jsonrpc"
	"github.com/imtaco/room-relay/internal/log"
	"github.com/imtaco/room-relay/rooms"
	"github.com/imtaco/room-relay/session"
)

type Server struct {
	jsonrpc.Handler[connContext]
	sessions *session.Manager
	relay    *session.Relay
	clock    clockwork.Clock
	once     sync.Once
	logger   *log.Logger
}

func NewServer(
	handler jsonrpc.Handler[connContext],
	sessions *session.Manager,
	relay *session.Relay,
	clock clockwork.Clock,
	logger *log.Logger,
) *Server {
	if handler == nil || sessions == nil || relay == nil {
		panic("handler, sessions and relay are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Server{
		Handler:  handler,
		sessions: sessions,
		relay:    relay,
		clock:    clock,
		logger:   logger,
	}
}

func (s *Server) Open(_ context.Context) error {
	s.logger.Info("Opening Signal Server")
	s.once.Do(s.register)
	return nil
}

func (s *Server) Close() error {
	s.logger.Info("Closing Signal Server")
	return nil
}

func (s *Server) register() {
	s.OnError(s.notifyError)

	s.def("create-room", s.handleCreateRoom)
	s.def("join-room", s.handleJoinRoom)
	s.def("leave-room", s.handleLeaveRoom)
	s.def("broadcast-message", s.handleBroadcastMessage)
	s.def("share-video", s.handleShareVideo)
	s.def("video-answer", s.handleVideoAnswer)
	s.def("ice-candidate", s.handleIceCandidate)
	s.def("video-state", s.handleMediaState)
	s.def("media-state-change", s.handleMediaState)
	s.def("start-screen-share", s.screenShare(true))
	s.def("stop-screen-share", s.screenShare(false))
	s.def("reconnect-video", s.handleReconnectVideo)
	s.def("signal", s.handleSignal)
}

// def installs a method behind the connection's rate limit and maps its
// errors to client codes.
func (s *Server) def(method string, h jsonrpc.MethodHandler[connContext]) {
	attrs := metric.WithAttributes(attribute.String("method", method))
	s.Def(method, func(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
		ctx := mctx.Context()
		c := mctx.Get()
		messagesReceived.Add(ctx, 1, attrs)

		if c.limiter != nil && !c.limiter.Allow() {
			rpcRequestsFailed.Add(ctx, 1, attrs)
			s.logger.Debug("Request rate limited",
				log.String("connectionId", c.connID),
				log.String("method", method))
			return nil, errRateLimited
		}

		rpcRequestsTotal.Add(ctx, 1, attrs)
		start := s.clock.Now()
		result, err := h(mctx, params)
		rpcDuration.Record(ctx, s.clock.Since(start).Seconds(), attrs)
		if err != nil {
			rpcRequestsFailed.Add(ctx, 1, attrs)
			s.logFailure(c, method, err)
			return nil, toRPCError(err)
		}
		return result, nil
	})
}

func (s *Server) logFailure(c *connContext, method string, err error) {
	fields := []log.Field{
		log.String("connectionId", c.connID),
		log.String("userId", c.userID),
		log.String("method", method),
		log.Error(err),
	}
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrTargetNotInRoom):
		s.logger.Warn("Request raced with a membership change", fields...)
	case errors.Is(err, rooms.ErrDirectoryUnavailable), errors.Is(err, session.ErrInternal):
		s.logger.Error("Request failed", fields...)
	default:
		s.logger.Debug("Request rejected", fields...)
	}
}

// notifyError repeats a failed request's error as an "error" event, which is
// what clients that ignore responses listen to.
func (s *Server) notifyError(mctx jsonrpc.MethodContext[connContext], method string, rpcErr *jsonrpc.Error) {
	if err := mctx.Peer().Notify(mctx.Context(), session.EventError, &errorEvent{
		Message: rpcErr.Message,
		Code:    rpcErr.Code,
		Method:  method,
	}); err != nil {
		s.logger.Debug("Failed to send error event",
			log.String("connectionId", mctx.Get().connID),
			log.Error(err))
	}
}

func (s *Server) ack() *ackResult {
	return &ackResult{Success: true, Timestamp: session.FormatTimestamp(s.clock.Now())}
}

func (s *Server) handleCreateRoom(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data createRoomParams
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	c := mctx.Get()
	if data.OwnerID != "" && data.OwnerID != c.userID {
		return nil, errors.New(session.ErrForbidden, "ownerId does not match the authenticated user")
	}

	room, err := s.sessions.CreateRoom(mctx.Context(), c.userID, data.Name, data.MaxParticipants, data.InviteOnly)
	if err != nil {
		return nil, err
	}
	return &createRoomResult{
		Room:      room,
		RoomCode:  room.Code,
		Timestamp: session.FormatTimestamp(s.clock.Now()),
	}, nil
}

// handleJoinRoom leaves the code format to the access check so a malformed
// code is reported as a denial like every other join refusal.
func (s *Server) handleJoinRoom(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data struct {
		RoomCode string `json:"roomCode" validate:"required"`
	}
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	c := mctx.Get()
	return s.sessions.JoinRoom(mctx.Context(), c.connID, c.userID, data.RoomCode)
}

func (s *Server) handleLeaveRoom(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data roomParams
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	if err := s.sessions.LeaveRoom(mctx.Context(), mctx.Get().connID, data.RoomCode); err != nil {
		return nil, err
	}
	return s.ack(), nil
}

func (s *Server) handleBroadcastMessage(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data struct {
		RoomCode string `json:"roomCode" validate:"required,roomcode"`
		Message  string `json:"message" validate:"required,max=4000"`
	}
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	if err := s.relay.Broadcast(mctx.Context(), mctx.Get().connID, data.RoomCode, data.Message); err != nil {
		return nil, err
	}
	return s.ack(), nil
}

// handleShareVideo announces a new outgoing stream with its offer, or its end.
// The sharer also learns who is already there so it can offer to each of them.
func (s *Server) handleShareVideo(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data struct {
		RoomCode     string          `json:"roomCode" validate:"required,roomcode"`
		VideoEnabled bool            `json:"videoEnabled"`
		SDPOffer     json.RawMessage `json:"sdpOffer"`
	}
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	if data.VideoEnabled && isEmptyJSON(data.SDPOffer) {
		return nil, errors.New(session.ErrValidation, "SDP offer is required to start video")
	}

	ctx := mctx.Context()
	connID := mctx.Get().connID
	if data.VideoEnabled {
		if _, err := s.relay.BroadcastEvent(ctx, connID, data.RoomCode, session.EventVideoOffer,
			session.Payload{"sdpOffer": data.SDPOffer}); err != nil {
			return nil, err
		}
		if err := s.relay.SendExistingUsers(ctx, connID, data.RoomCode); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.relay.BroadcastEvent(ctx, connID, data.RoomCode, session.EventVideoClose,
			session.Payload{}); err != nil {
			return nil, err
		}
	}

	if err := s.sessions.UpdateVideo(ctx, connID, data.RoomCode, data.VideoEnabled); err != nil {
		return nil, err
	}
	return s.ack(), nil
}

func (s *Server) handleVideoAnswer(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data struct {
		targetParams
		SDPAnswer json.RawMessage `json:"sdpAnswer"`
	}
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	if isEmptyJSON(data.SDPAnswer) {
		return nil, errors.New(session.ErrValidation, "sdpAnswer is required")
	}
	if err := s.relay.RelayToPeer(mctx.Context(), mctx.Get().connID, data.RoomCode, data.TargetConnectionID,
		session.EventVideoAnswer, session.Payload{"sdpAnswer": data.SDPAnswer}); err != nil {
		return nil, err
	}
	return s.ack(), nil
}

func (s *Server) handleIceCandidate(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data struct {
		targetParams
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	if isEmptyJSON(data.Candidate) {
		return nil, errors.New(session.ErrValidation, "candidate is required")
	}
	if err := s.relay.RelayToPeer(mctx.Context(), mctx.Get().connID, data.RoomCode, data.TargetConnectionID,
		session.EventIceCandidate, session.Payload{"candidate": data.Candidate}); err != nil {
		return nil, err
	}
	return s.ack(), nil
}

func (s *Server) handleMediaState(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data struct {
		RoomCode     string `json:"roomCode" validate:"required,roomcode"`
		VideoEnabled bool   `json:"videoEnabled"`
		AudioEnabled bool   `json:"audioEnabled"`
	}
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateMediaState(mctx.Context(), mctx.Get().connID, data.RoomCode,
		data.VideoEnabled, data.AudioEnabled); err != nil {
		return nil, err
	}
	return s.ack(), nil
}

func (s *Server) screenShare(sharing bool) jsonrpc.MethodHandler[connContext] {
	return func(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
		var data roomParams
		if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
			return nil, err
		}
		if err := s.sessions.UpdateScreenShare(mctx.Context(), mctx.Get().connID, data.RoomCode, sharing); err != nil {
			return nil, err
		}
		return s.ack(), nil
	}
}

func (s *Server) handleReconnectVideo(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data roomParams
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	if _, err := s.relay.BroadcastEvent(mctx.Context(), mctx.Get().connID, data.RoomCode,
		session.EventPeerReconnecting, session.Payload{}); err != nil {
		return nil, err
	}
	return s.ack(), nil
}

func (s *Server) handleSignal(mctx jsonrpc.MethodContext[connContext], params *json.RawMessage) (any, error) {
	var data struct {
		RoomCode string          `json:"roomCode" validate:"required,roomcode"`
		To       string          `json:"to" validate:"required"`
		Signal   json.RawMessage `json:"signal"`
		Type     string          `json:"type" validate:"max=64"`
	}
	if err := jsonrpc.ShouldBindParams(params, &data); err != nil {
		return nil, err
	}
	if isEmptyJSON(data.Signal) {
		return nil, errors.New(session.ErrValidation, "signal is required")
	}
	payload := session.Payload{"signal": data.Signal}
	if data.Type != "" {
		payload["type"] = data.Type
	}
	if err := s.relay.RelayToPeer(mctx.Context(), mctx.Get().connID, data.RoomCode, data.To,
		session.EventSignal, payload); err != nil {
		return nil, err
	}
	return s.ack(), nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", `""`, "{}":
		return true
	}
	return false
}
