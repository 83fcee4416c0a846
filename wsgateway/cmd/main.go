package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"

	"github.com/imtaco/room-relay/internal/config"
	"github.com/imtaco/room-relay/internal/etcd"
	hbetcd "github.com/imtaco/room-relay/internal/heartbeat/etcd"
	"github.com/imtaco/room-relay/internal/httputil"
	"github.com/imtaco/room-relay/internal/identity"
	wsrpc "github.com/imtaco/room-relay/internal/jsonrpc/websocket"
	"github.com/imtaco/room-relay/internal/log"
	"github.com/imtaco/room-relay/internal/otel"
	"github.com/imtaco/room-relay/internal/redis"
	sredis "github.com/imtaco/room-relay/internal/stream/redis"
	"github.com/imtaco/room-relay/internal/workflow"
	"github.com/imtaco/room-relay/rooms/access"
	"github.com/imtaco/room-relay/rooms/store"
	"github.com/imtaco/room-relay/rooms/transport"
	"github.com/imtaco/room-relay/session"
	"github.com/imtaco/room-relay/session/eventlog"
	"github.com/imtaco/room-relay/wsgateway/signal"
)

type Config struct {
	App       config.App             `mapstructure:"app"`
	WSHttp    httputil.Config        `mapstructure:"ws_http"`
	APIHttp   httputil.Config        `mapstructure:"api_http"`
	Redis     redis.Config           `mapstructure:"redis"`
	Etcd      etcd.Config            `mapstructure:"etcd"`
	Otel      otel.Config            `mapstructure:"otel"`
	Auth      identity.Config        `mapstructure:"auth"`
	Session   session.Config         `mapstructure:"session"`
	RateLimit signal.RateLimitConfig `mapstructure:"ratelimit"`
	CORS      transport.CORSConfig   `mapstructure:"cors"`
}

func loadConfig() (*Config, error) {
	return config.Load(&Config{}, func(v *viper.Viper) {
		config.Setup(v, "app")
		redis.Setup(v, "redis")
		etcd.Setup(v, "etcd")
		otel.Setup(v, "otel")
		httputil.Setup(v, "ws_http")
		httputil.Setup(v, "api_http")
		identity.Setup(v, "auth")
		session.Setup(v, "session")
		signal.SetupRateLimit(v, "ratelimit")
		transport.SetupCORS(v, "cors")

		// override default addrs to ease testing
		v.SetDefault("ws_http.addr", "0.0.0.0:8081")
		v.SetDefault("api_http.addr", "0.0.0.0:8080")
	})
}

// presence is what other instances and operators see under the etcd key.
type presence struct {
	ID        string    `json:"id"`
	Host      string    `json:"host"`
	WSAddr    string    `json:"wsAddr"`
	APIAddr   string    `json:"apiAddr"`
	StartedAt time.Time `json:"startedAt"`
}

func main() {
	config, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", err)
	}

	logger, err := log.NewLogger(config.App.LogConfigFile)
	if err != nil {
		log.Fatal("Failed to create logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instanceID := uuid.NewString()
	logger = logger.With(log.String("instance", instanceID))

	// Initialize OpenTelemetry
	config.Otel.InstanceID = instanceID
	otelShutdown, err := otel.Init(ctx, &config.Otel, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OTEL provider", log.Error(err))
	}

	logger.Info("Starting room relay...")
	clock := clockwork.NewRealClock()

	redisClient := redis.NewClient(&config.Redis)
	if err := redis.Ping(ctx, redisClient, config.Redis.StartupWait, logger.Module("Redis")); err != nil {
		logger.Fatal("Failed to connect to Redis", log.Error(err))
	}

	verifier, err := identity.New(config.Auth, logger.Module("Identity"))
	if err != nil {
		logger.Fatal("Failed to create identity verifier", log.Error(err))
	}

	producer, err := sredis.NewProducer(
		redisClient,
		config.Session.EventStream,
		config.Session.EventStreamMaxLen,
		logger.Module("EventStream"),
	)
	if err != nil {
		logger.Fatal("Failed to create event stream producer", log.Error(err))
	}
	trimer := sredis.NewTrimer(redisClient, config.Session.EventStream, clock, logger.Module("EventStream"))
	sink := eventlog.NewRedisSink(producer, trimer, config.Session.EventStreamMaxAge, clock, logger.Module("EventLog"))

	directory := store.NewRedisDirectory(redisClient, config.Session.RedisPrefix, clock, logger.Module("Directory"))
	validator := access.NewValidator(directory, logger.Module("Access"))
	registry := session.NewRegistry()
	connMgr := signal.NewConnManager(logger.Module("ConnMgr"))

	sessions := session.NewManager(
		directory,
		validator,
		registry,
		connMgr,
		sink,
		clock,
		config.Session,
		logger.Module("Session"),
	)
	relay := session.NewRelay(registry, connMgr, clock, logger.Module("Relay"))

	hook := signal.NewWSHook(
		connMgr,
		sessions,
		verifier,
		config.RateLimit,
		clock,
		logger.Module("WSHook"),
	)
	wsRPCServer := wsrpc.NewServer(
		hook,
		config.CORS.AllowOrigins,
		logger.Module("WSRPC"),
	)
	signalServer := signal.NewServer(
		wsRPCServer,
		sessions,
		relay,
		clock,
		logger.Module("Signal"),
	)
	router := transport.NewRouter(sessions, verifier, config.CORS, clock, logger.Module("RoomsAPI"))

	// Start components
	if err := signalServer.Open(ctx); err != nil {
		logger.Fatal("Failed to open Signal Server", log.Error(err))
	}
	go sink.Run(ctx, 0)

	var heartbeat *hbetcd.Heartbeat[presence]
	var closeEtcd func() error
	if config.Etcd.Enabled {
		etcdClient, err := etcd.NewClient(&config.Etcd, logger.Module("Etcd"))
		if err != nil {
			logger.Fatal("Failed to create etcd client", log.Error(err))
		}
		closeEtcd = etcdClient.Close

		host, _ := os.Hostname()
		heartbeat = hbetcd.New(etcdClient, config.Etcd.PresenceKey(instanceID), presence{
			ID:        instanceID,
			Host:      host,
			WSAddr:    config.WSHttp.Addr,
			APIAddr:   config.APIHttp.Addr,
			StartedAt: clock.Now().UTC(),
		}, config.Etcd.PresenceTTL, logger.Module("Heartbeat"))
		if err := heartbeat.Start(ctx); err != nil {
			logger.Fatal("Failed to register gateway presence", log.Error(err))
		}
	}

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", wsRPCServer.HandleWebSocket)
	wsMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wsServer := httputil.NewServer(&config.WSHttp, wsMux)
	apiServer := httputil.NewServer(&config.APIHttp, router.Handler())

	// Start servers in goroutines
	go func() {
		logger.Info("Starting WebSocket server", log.String("addr", config.WSHttp.Addr))
		if err := wsServer.Listen(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start WebSocket server", log.Error(err))
		}
	}()
	go func() {
		logger.Info("Starting rooms API server", log.String("addr", config.APIHttp.Addr))
		if err := apiServer.Listen(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start rooms API server", log.Error(err))
		}
	}()

	// Graceful shutdown
	cleanup := func(ctx context.Context) {
		// leave etcd first so nobody routes new clients here
		if heartbeat != nil {
			if err := heartbeat.Stop(ctx); err != nil {
				logger.Error("Failed to remove gateway presence", log.Error(err))
			}
		}
		_ = apiServer.Shutdown(ctx)
		_ = wsServer.Shutdown(ctx)
		_ = signalServer.Close()
		cancel()

		rooms, conns := registry.Stats()
		logger.Info("Session registry at shutdown",
			log.Int("rooms", rooms),
			log.Int("connections", conns))

		if err := redisClient.Close(); err != nil {
			logger.Error("Error closing Redis client", log.Error(err))
		}
		if closeEtcd != nil {
			if err := closeEtcd(); err != nil {
				logger.Error("Error closing etcd client", log.Error(err))
			}
		}
		if err := otelShutdown(ctx); err != nil {
			logger.Error("Failed to shutdown OTEL", log.Error(err))
		}
	}
	workflow.WaitGracefulShutdown(ctx, logger.Module("CleanUp"), cleanup, config.App.ShutdownTimeout)
}
