package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workphone-gateway/internal/config"
	"workphone-gateway/internal/events"
	"workphone-gateway/internal/gateway"
	"workphone-gateway/internal/handler"
	"workphone-gateway/internal/middleware"
	"workphone-gateway/internal/presence"
	"workphone-gateway/internal/push"
	"workphone-gateway/internal/repository"
	"workphone-gateway/internal/service"
	"workphone-gateway/internal/upgrade"
	"workphone-gateway/pkg/logger"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Logging.Level, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		zl.Fatal("failed to connect to CouchDB", zap.Error(err))
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		zl.Fatal("failed to check database existence", zap.Error(err))
	}

	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			zl.Fatal("failed to create database", zap.Error(err))
		}
		zl.Info("created database", zap.String("name", cfg.Database.Name))
	}

	userRepo := repository.NewUserRepository(client, cfg.Database.Name)
	deviceRepo := repository.NewDeviceRepository(client, cfg.Database.Name)
	callRepo := repository.NewCallRepository(client, cfg.Database.Name)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := gateway.NewHub(gateway.Options{
		HeartbeatTimeout: cfg.Gateway.HeartbeatTimeout,
		SweepInterval:    cfg.Gateway.SweepInterval,
		UnbindGrace:      cfg.Gateway.UnbindGrace,
		WriteWait:        cfg.Gateway.WriteWait,
		MaxMessageSize:   cfg.Gateway.MaxMessageSize,
		SendBufferSize:   cfg.Gateway.SendBufferSize,
	}, gateway.NewMetrics(reg), zl.Named("gateway"))

	pushManager := push.NewManager(push.Options{
		MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
	}, zl.Named("push"))

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		np, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, "workphone-gateway")
		if err != nil {
			zl.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer np.Close()
		publisher = np
	}

	deviceService := service.NewDeviceService(deviceRepo, userRepo, hub, cfg.JWT.Secret, cfg.JWT.DeviceTokenExpiration, zl.Named("devices"))
	authService := service.NewAuthService(userRepo, deviceService, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	userService := service.NewUserService(userRepo)
	callService := service.NewCallService(callRepo, deviceRepo, hub, pushManager, publisher, zl.Named("calls"))

	hub.SetCallRecorder(callService)
	hub.AddListener(deviceService)
	hub.AddListener(pushManager)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.Redis.Addr != "" {
		store, err := presence.NewStore(ctx, presence.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.PresenceTTL,
		}, zl.Named("presence"))
		if err != nil {
			zl.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer store.Close()
		hub.AddListener(store)
		go store.RunRefresher(ctx, hub.Sessions)
	}

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()
	go pushManager.Run(ctx)

	authenticator := gateway.NewAuthenticator(gateway.NewJWTVerifier(cfg.JWT.Secret), deviceService)
	gatewayHandler := gateway.NewHandler(hub, authenticator, cfg.Gateway.AuthTimeout)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	callHandler := handler.NewCallHandler(callService)
	statusHandler := handler.NewGatewayHandler(hub)
	wsHandler := handler.NewWebSocketHandler(pushManager, authService, zl.Named("push"))

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(zl.Named("http")))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(authService))

	protected.HandleFunc("/users/me", userHandler.GetMe).Methods("GET", "OPTIONS")
	protected.HandleFunc("/users/me", userHandler.UpdateMe).Methods("PUT", "OPTIONS")

	protected.HandleFunc("/devices", deviceHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/devices/bind", deviceHandler.Bind).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices/{id}", deviceHandler.Unbind).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/calls", callHandler.Dial).Methods("POST", "OPTIONS")
	protected.HandleFunc("/calls/{id}", callHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/calls/{id}/cancel", callHandler.Cancel).Methods("POST", "OPTIONS")

	protected.HandleFunc("/gateway/devices", statusHandler.OnlineDevices).Methods("GET", "OPTIONS")

	r.HandleFunc(cfg.WebSocket.Path, wsHandler.HandleConnection)

	if cfg.Server.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}
	r.HandleFunc("/health", healthHandler).Methods("GET")

	// Device upgrades are claimed before the router so that the REST
	// middleware never wraps the gateway connection.
	root := upgrade.NewDispatcher(r, zl.Named("upgrade"), upgrade.Route{
		Name:    "device-gateway",
		Path:    cfg.Gateway.Path,
		Handler: gatewayHandler,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("starting workphone gateway",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("gateway_path", cfg.Gateway.Path),
			zap.String("push_path", cfg.WebSocket.Path))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; the hub
	// closes them with 1001 once its context is cancelled.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	stop()

	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
	}

	zl.Info("server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"workphone-gateway"}`))
}
