package main

import (
	"context"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erdflow/backend/internal/application/services"
	"github.com/erdflow/backend/internal/cdm"
	"github.com/erdflow/backend/internal/config"
	"github.com/erdflow/backend/internal/deploy"
	"github.com/erdflow/backend/internal/infrastructure/backends"
	"github.com/erdflow/backend/internal/interfaces/middleware"
	"github.com/erdflow/backend/internal/interfaces/rest"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize metadata backend connection
	metaClient, err := backends.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to connect to metadata backend (%s): %v", cfg.Backend, err)
	}
	log.Printf("✅ Metadata backend ready (%s)", cfg.Backend)

	pipeline := services.NewPipelineService(metaClient, cdm.DefaultCatalog(), deploy.Options{
		Concurrency: cfg.Deploy.Concurrency,
		MaxAttempts: cfg.Deploy.MaxAttempts,
		Backoff:     cfg.Deploy.Backoff,
	})
	pipeline.SetDeployDefaults(deploy.Config{
		PublisherPrefix:     cfg.Deploy.PublisherPrefix,
		PublisherName:       cfg.Deploy.PublisherName,
		SolutionName:        cfg.Deploy.SolutionName,
		SolutionDisplayName: cfg.Deploy.SolutionFriendly,
	})
	log.Println("🔧 Pipeline service initialized")

	// Create Gin router
	router := gin.Default()

	// CORS middleware - Allow credentials from any origin
	router.Use(middleware.Cors())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "golang",
		})
	})

	// Debug/pprof endpoints for goroutine debugging
	// Access: http://localhost:8080/debug/pprof/
	// Goroutine stacks: http://localhost:8080/debug/pprof/goroutine?debug=2
	debug := router.Group("/debug/pprof")
	{
		debug.GET("/", gin.WrapF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/debug/pprof/", http.StatusMovedPermanently)
		})))
		debug.GET("/goroutine", gin.WrapH(http.DefaultServeMux))
		debug.GET("/heap", gin.WrapH(http.DefaultServeMux))
		debug.GET("/profile", gin.WrapH(http.DefaultServeMux))
		debug.GET("/trace", gin.WrapH(http.DefaultServeMux))
	}

	// API routes
	api := router.Group("/api")
	rest.NewPipelineHandler(pipeline).RegisterRoutes(api)

	// Start server
	log.Println("\n═══════════════════════════════════════════════════════════════════════════")
	log.Println("🚀 ERDFlow Backend Started Successfully")
	log.Println("═══════════════════════════════════════════════════════════════════════════")
	log.Printf("\n📍 Server:         http://localhost:%s", cfg.Port)
	log.Printf("📝 Diagram API:    http://localhost:%s/api/diagram", cfg.Port)
	log.Printf("📐 Schema API:     http://localhost:%s/api/schema", cfg.Port)
	log.Printf("📦 Deploy API:     http://localhost:%s/api/deploy", cfg.Port)
	log.Printf("💚 Health check:   http://localhost:%s/health\n", cfg.Port)

	// Create HTTP Server
	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
