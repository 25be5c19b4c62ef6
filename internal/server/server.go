package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/rag"
)

// Start initializes and starts the HTTP server.
// Returns the actual address being listened on (useful for testing with port 0).
// breaker may be nil when the provider does not report circuit state.
func Start(ctx context.Context, cfg *config.Config, engine *rag.Engine, breaker CircuitStater) (string, error) {
	handlers := NewHandlers(engine, breaker)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.Chat(w, r)
	})
	mux.HandleFunc("/api/memory/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.MemoryStats(w, r)
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.Health(w, r)
	})

	// WebSocket chat endpoint. Origin validation covers the usual local
	// frontends plus whatever host the server itself is bound to.
	origins := []string{
		"localhost:*",
		"127.0.0.1:*",
		cfg.Server.Host,
	}
	mux.Handle("/api/chat/ws", NewWSChatHandler(engine, origins))

	// Rate limiting first, security headers outermost.
	rateLimiter := NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	handler := RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // generation can be slow
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	return actualAddr, nil
}
