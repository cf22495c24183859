package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), "messaging-service", os.Getenv("OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	publisher := rabbitmq.NewPublisher(os.Getenv("AMQP_URL"), getEnv("AMQP_EXCHANGE", "messaging.events"))
	log.Printf("amqp publisher mode=%s", rabbitmq.PublisherMode(publisher))
	events := observability.NewEventsEmitter(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.messaging", "messaging-service", getEnv("ENVIRONMENT", "dev"))

	hub := ws.NewHub(events)
	broker := realtime.Multi(realtime.NewBroker(os.Getenv("REDIS_URL")), hub)
	notifier := handlers.NewNotifier(broker)

	verifier := auth.NewVerifier([]byte(getEnv("SESSION_SECRET", "dev-session-secret")))
	issuer := realtime.NewTokenIssuer([]byte(getEnv("REALTIME_SECRET", "dev-realtime-secret")), time.Hour)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, userRepo, notifier, audit)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, userRepo, notifier, audit)
	presenceHandler := handlers.NewPresenceHandler(userRepo, notifier)
	realtimeAuthHandler := handlers.NewRealtimeAuthHandler(issuer)
	gateway := ws.NewGateway(hub, conversationRepo, verifier, issuer, events)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messaging-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/conversations", authMiddleware, conversationHandler.StartConversation)
	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, conversationHandler.GetMessages)
	router.POST("/conversations/:conversation_id/seen", authMiddleware, conversationHandler.MarkSeen)
	router.POST("/messages", authMiddleware, messageHandler.SendMessage)
	router.GET("/presence/:user_id", authMiddleware, presenceHandler.GetStatus)
	router.POST("/presence", authMiddleware, presenceHandler.UpdateStatus)
	router.POST("/realtime-auth", authMiddleware, realtimeAuthHandler.IssueToken)

	router.GET("/ws/conversations/:conversation_id", gateway.HandleConversation)
	router.GET("/ws/me/conversations", gateway.HandleUserFeed)
	router.GET("/ws/presence", gateway.HandlePresence)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, hub, os.Getenv("DEBUG_ROUTES") == "true")

	port := getEnv("PORT", "8083")
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("listening on :%s", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := broker.Close(); err != nil {
		log.Printf("broker close: %v", err)
	}
	if err := publisher.Close(); err != nil {
		log.Printf("publisher close: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
	if err := database.Close(); err != nil {
		log.Printf("db close: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
