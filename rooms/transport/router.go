package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/identity"
	"github.com/imtaco/room-relay/internal/log"
	"github.com/imtaco/room-relay/internal/validation"
	"github.com/imtaco/room-relay/rooms"
	"github.com/imtaco/room-relay/rooms/access"
	"github.com/imtaco/room-relay/session"
)

const identityKey = "identity"

// RoomService is the part of the session manager the HTTP API needs.
type RoomService interface {
	CreateRoom(ctx context.Context, ownerID, name string, maxParticipants int, inviteOnly bool) (*rooms.Room, error)
	GetRoom(ctx context.Context, roomCode string) (*session.RoomInfo, error)
	SetRoomActive(ctx context.Context, userID, roomCode string, active bool) error
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

func SetupCORS(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".allow_origins", []string{"*"})
}

type Router struct {
	roomService RoomService
	verifier    identity.Verifier
	engine      *gin.Engine
	clock       clockwork.Clock
	logger      *log.Logger
}

func NewRouter(
	roomService RoomService,
	verifier identity.Verifier,
	corsCfg CORSConfig,
	clock clockwork.Clock,
	logger *log.Logger,
) *Router {
	if roomService == nil || verifier == nil {
		panic("room service and verifier are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Add OpenTelemetry middleware for automatic HTTP tracing
	engine.Use(otelgin.Middleware("rooms-api"))

	origins := corsCfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r := &Router{
		roomService: roomService,
		verifier:    verifier,
		engine:      engine,
		clock:       clock,
		logger:      logger,
	}

	r.setupRoutes()
	return r
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	api := r.engine.Group("/api", r.authenticate)
	api.POST("/rooms", r.createRoom)
	api.GET("/rooms/:code", r.getRoom)
	api.PUT("/rooms/:code/active", r.setActive)
}

// authenticate resolves the bearer token to the caller's identity.
func (r *Router) authenticate(c *gin.Context) {
	token := identity.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		authFailures.Add(c.Request.Context(), 1)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Missing bearer token",
		})
		return
	}

	id, err := r.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			authFailures.Add(c.Request.Context(), 1)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid token",
			})
			return
		}
		r.logger.Warn("Identity provider unavailable", log.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Authentication temporarily unavailable",
		})
		return
	}

	c.Set(identityKey, id)
	c.Next()
}

func caller(c *gin.Context) *identity.Identity {
	return c.MustGet(identityKey).(*identity.Identity)
}

func (r *Router) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"details": validation.FormatValidationError(err),
		})
		return
	}

	room, err := r.roomService.CreateRoom(c.Request.Context(), caller(c).UserID, req.Name, req.MaxParticipants, req.InviteOnly)
	if err != nil {
		r.fail(c, "create room", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"room":    room,
	})
}

func (r *Router) getRoom(c *gin.Context) {
	var uri RoomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"details": validation.FormatValidationError(err),
		})
		return
	}

	info, err := r.roomService.GetRoom(c.Request.Context(), uri.Code)
	if err != nil {
		r.fail(c, "get room", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"room":    info,
	})
}

func (r *Router) setActive(c *gin.Context) {
	var uri RoomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"details": validation.FormatValidationError(err),
		})
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"details": validation.FormatValidationError(err),
		})
		return
	}

	if err := r.roomService.SetRoomActive(c.Request.Context(), caller(c).UserID, uri.Code, *req.Active); err != nil {
		r.fail(c, "set room active", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"code":    uri.Code,
		"active":  *req.Active,
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "rooms",
		"timestamp": session.FormatTimestamp(r.clock.Now()),
	})
}

// fail answers with the status matching err. Details of server side failures stay in the log.
func (r *Router) fail(c *gin.Context, op string, err error) {
	status, message := statusOf(err)
	requestsFailed.Add(c.Request.Context(), 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Int("status", status)))

	if status >= http.StatusInternalServerError {
		r.logger.Error("Room request failed", log.String("op", op), log.Error(err))
	} else {
		r.logger.Debug("Room request rejected", log.String("op", op), log.Error(err))
	}

	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

func statusOf(err error) (int, string) {
	if denied, ok := errors.As[*access.DeniedError](err); ok {
		if (*denied).Reason == access.ReasonInvalidFormat {
			return http.StatusBadRequest, (*denied).Error()
		}
		return http.StatusForbidden, (*denied).Error()
	}

	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest, errors.Message(err)
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, "Only the room owner may do this"
	case errors.IsAny(err, session.ErrNotFound, rooms.ErrRoomNotFound):
		return http.StatusNotFound, "Room not found"
	case errors.IsAny(err, rooms.ErrDirectoryUnavailable, session.ErrCreationFailed, session.ErrCodeExhausted):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
