package transitnotify

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/transitwatch/transit-notify/internal/metrics"
)

var server *http.Server

// ServerDeps is everything the HTTP layer talks to.
type ServerDeps struct {
	Poller   *Poller
	Service  *Service
	Resolver *RouteResolver
	Metrics  *metrics.Collector
}

func StartServer(port int, deps ServerDeps) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", deps.handleHealth)
	mux.Handle("/metrics", deps.Metrics.Handler())
	mux.HandleFunc("/api/vehicles/near", deps.handleVehiclesNear)
	mux.HandleFunc("/api/notifications/test", deps.handleTestNotification)
	mux.HandleFunc("/api/admin/cache/clear", deps.handleCacheClear)

	addr := fmt.Sprintf(":%d", port)
	server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("server listening on %s", addr)
}

// HandleGracefulShutdown blocks until SIGINT/SIGTERM, drains the HTTP
// server, then runs the cleanup funcs in order.
func HandleGracefulShutdown(cleanup ...func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Printf("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("server shutdown error: %v", err)
		} else {
			log.Printf("server shut down successfully")
		}
	}
	for _, fn := range cleanup {
		fn()
	}
}
