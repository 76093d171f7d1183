package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/otkinlife/go_tools/logger_tools"

	flansa "github.com/dineshvijayakumar2/flansa-builder"
	"github.com/dineshvijayakumar2/flansa-builder/config"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	shutdownTimeout    = 10 * time.Second
)

func main() {
	// 加载配置
	appConfig, err := config.NewLoader().Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	builder, err := flansa.New(&appConfig.Database, flansa.ConfigFromApp(appConfig))
	if err != nil {
		log.Fatal("Failed to initialize builder:", err)
	}
	defer builder.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	builder.RegisterRoutes(router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pruneSessions(ctx, builder)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", appConfig.Server.Port),
		Handler: router,
	}

	// Shutdown drains in-flight requests before the database is closed.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Println("Server shutdown failed:", err)
		}
	}()

	log.Printf("Starting Flansa builder on :%d (API at %s)", appConfig.Server.Port, appConfig.Server.BasePath)
	if err := serve(server, drained); err != nil {
		log.Fatal("Failed to start server:", err)
	}
	log.Println("Server stopped")
}

// serve runs server until it is shut down, then waits for drained so the
// caller's cleanup does not race in-flight requests.
func serve(server *http.Server, drained <-chan struct{}) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	return nil
}

// pruneSessions closes idle form-builder sessions until ctx ends.
func pruneSessions(ctx context.Context, builder *flansa.Builder) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	logCtx := logger_tools.NewContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := builder.PruneSessions(sessionIdleTimeout); n > 0 {
				logger_tools.Info(logCtx, "Closed idle form sessions:", n)
			}
		}
	}
}
