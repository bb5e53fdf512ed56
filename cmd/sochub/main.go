package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hive-corporation/sochub/internal/adapter/handler"
	"github.com/hive-corporation/sochub/internal/adapter/module"
	"github.com/hive-corporation/sochub/internal/adapter/notifier"
	"github.com/hive-corporation/sochub/internal/adapter/vendorapi"
	"github.com/hive-corporation/sochub/internal/registry"
)

const version = "1.0.0"

func main() {
	// Load .env file if it exists (optional - credentials may come from the environment)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found (relying on the environment)")
	}

	vendorapi.InitMetrics()
	log.Println("✅ Prometheus metrics initialized")

	// Slack notifier (optional - only if token configured)
	var slackNotifier *notifier.SlackNotifier
	if slackToken := os.Getenv("SLACK_BOT_TOKEN"); slackToken != "" {
		slackNotifier = notifier.NewSlackNotifier(
			slackToken,
			getEnv("SLACK_CHANNEL_SECURITY", "#security-alerts"),
			getEnv("SLACK_MENTION_TEAM", "@security-team"),
		)
		log.Println("✅ Slack notifier enabled")
	} else {
		log.Println("⚠️  Slack notifier disabled (no SLACK_BOT_TOKEN)")
	}

	reg := buildRegistry(http.DefaultClient, slackNotifier)

	initCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	results := reg.InitializeAll(initCtx)
	cancel()

	active := 0
	for _, ok := range results {
		if ok {
			active++
		}
	}
	log.Printf("🚀 %d/%d modules active", active, len(results))

	// HTTP router
	router := mux.NewRouter()
	restHandler := handler.NewRestHandler(reg, version)
	restHandler.Mount(router)

	// Metrics endpoint (requires authentication)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Middleware wraps the router itself, not router.Use: mux skips Use()
	// middleware for the NotFoundHandler, which would let unknown paths
	// bypass auth and logging.
	authToken := os.Getenv("REST_API_AUTH_TOKEN")
	if authToken == "" {
		log.Println("⚠️  Warning: REST_API_AUTH_TOKEN not set - auth disabled")
	}
	rootHandler := handler.LoggingMiddleware(handler.AuthMiddleware(authToken, router))

	// Optional gRPC health endpoint for sidecar probes
	var grpcServer *grpc.Server
	if addr := os.Getenv("GRPC_LISTEN_ADDR"); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("❌ Failed to listen on %s: %v", addr, err)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, handler.NewGrpcHealthServer(reg))
		go func() {
			log.Printf("🚀 gRPC health server listening on %s", addr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Printf("❌ gRPC server stopped: %v", err)
			}
		}()
	}

	// HTTP server
	port := getEnv("REST_API_PORT", "8080")
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      rootHandler,
		ReadTimeout: 15 * time.Second,
		// Must outlast the advanced-hunting long timeout
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("🚀 SOC Hub REST API listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}

// buildRegistry wires every vendor module from its environment credentials.
// Unconfigured modules are still registered; they surface an error status
// instead of disappearing from the API.
func buildRegistry(client vendorapi.Doer, slackNotifier *notifier.SlackNotifier) *registry.Registry {
	reg := registry.New()

	defender := module.NewDefenderModule(module.DefenderConfig{
		TenantID:     os.Getenv("DEFENDER_TENANT_ID"),
		ClientID:     os.Getenv("DEFENDER_CLIENT_ID"),
		ClientSecret: os.Getenv("DEFENDER_CLIENT_SECRET"),
		BaseURL:      os.Getenv("DEFENDER_BASE_URL"),
	}, client)
	if slackNotifier != nil {
		defender.SetNotifier(slackNotifier)
	}
	reg.Register(defender)

	reg.Register(module.NewTheHiveModule(module.TheHiveConfig{
		APIURL: os.Getenv("THEHIVE_API_URL"),
		APIKey: os.Getenv("THEHIVE_API_KEY"),
	}, client))

	reg.Register(module.NewUrlscanModule(module.UrlscanConfig{
		APIKey: os.Getenv("URLSCAN_API_KEY"),
	}, client))

	reg.Register(module.NewIntelModule(module.VirusTotalVendor(), os.Getenv("VIRUSTOTAL_API_KEY"), client))
	reg.Register(module.NewIntelModule(module.ShodanVendor(), os.Getenv("SHODAN_API_KEY"), client))
	reg.Register(module.NewIntelModule(module.AbuseIPDBVendor(), os.Getenv("ABUSEIPDB_API_KEY"), client))

	return reg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
