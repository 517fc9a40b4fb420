package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noxco7/nickname-messenger-backend/internal/config"
	"github.com/noxco7/nickname-messenger-backend/internal/database"
	"github.com/noxco7/nickname-messenger-backend/internal/delivery"
	"github.com/noxco7/nickname-messenger-backend/internal/http/handlers"
	"github.com/noxco7/nickname-messenger-backend/internal/http/middleware"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/presence"
	"github.com/noxco7/nickname-messenger-backend/internal/push"
	"github.com/noxco7/nickname-messenger-backend/internal/receipts"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
	"github.com/noxco7/nickname-messenger-backend/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET must be set")
	}

	var st store.Store
	if cfg.DBDSN == "" {
		logger.Warn().Msg("DB_DSN not set, using in-memory store; nothing will survive a restart")
		st = store.NewMem()
	} else {
		db, err := database.ConnectMySQL(cfg.DBDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		if err := db.AutoMigrate(
			&models.User{},
			&models.DeviceEndpoint{},
			&models.Conversation{},
			&models.Message{},
			&models.ReadReceipt{},
		); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
		st = store.New(db)
	}

	verifier := identity.NewTokenVerifier(cfg.JWTSecret, st)

	hub := ws.NewHub(verifier, st, logger)
	hub.SetPresenceNotifier(presence.New(st, st, hub, logger))

	var gateway push.Gateway
	if cfg.PushGatewayURL != "" {
		gateway = push.NewHTTPGateway(cfg.PushGatewayURL, cfg.PushServerKey)
	} else {
		gateway = push.LogGateway{Logger: logger}
	}
	fallback := push.New(st, gateway, logger)

	coordinator := delivery.New(st, st, hub, fallback, logger)
	tracker := receipts.New(st, st, st, hub, logger)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		bridge := ws.NewBridge(rdb, hub, logger)
		go bridge.Run(context.Background())
		logger.Info().Str("addr", cfg.RedisAddr).Msg("cross-instance fan-out bridge enabled")
	}

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	authH := &handlers.AuthHandler{Users: st, JWTSecret: cfg.JWTSecret}
	r.POST("/api/v1/auth/register", authH.Register)
	r.POST("/api/v1/auth/login", authH.Login)

	wsH := &handlers.WSHandler{
		Hub:                  hub,
		Coordinator:          coordinator,
		Receipts:             tracker,
		WSInsecureSkipVerify: cfg.WSInsecureSkipVerify,
		Logger:               logger,
	}
	r.GET("/ws", wsH.Handle)

	authed := r.Group("/api/v1")
	authed.Use(middleware.Auth(verifier))

	chatH := &handlers.ChatHandler{Conversations: st, Users: st}
	authed.POST("/conversations", chatH.CreateDirectConversation)
	authed.GET("/conversations", chatH.ListConversations)
	authed.GET("/conversations/:id", chatH.GetConversation)

	msgH := &handlers.MessageHandler{
		Coordinator:   coordinator,
		Receipts:      tracker,
		Conversations: st,
		Messages:      st,
	}
	authed.POST("/conversations/:id/messages", msgH.SendMessage)
	authed.GET("/conversations/:id/messages", msgH.ListMessages)
	authed.POST("/conversations/:id/read", msgH.MarkRead)

	devH := &handlers.DeviceHandler{Users: st}
	authed.POST("/devices", devH.Register)
	authed.DELETE("/devices", devH.Unregister)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("listening")

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}

	// No new submits can arrive now; drain what is still fanning out.
	coordinator.Wait()
	logger.Info().Msg("fan-out drained, exiting")
}
