// Command local runs the issuer as a plain HTTP server for development.
// POST /issue takes the same JSON body as the Lambda front ends.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/spf13/pflag"

	"github.com/boogy/aws-cwt-issuer/pkg/cache"
	"github.com/boogy/aws-cwt-issuer/pkg/handler"
	"github.com/boogy/aws-cwt-issuer/pkg/metrics"
	"github.com/boogy/aws-cwt-issuer/pkg/version"
)

// ServerSettings for the local server
type ServerSettings struct {
	Port            int
	ConfigPath      string
	LogLevel        string
	SimulateLatency time.Duration
}

func main() {
	settings := parseCliFlags()

	bootstrap, err := handler.NewBootstrap()
	if err != nil {
		slog.Error("Failed to initialize", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer bootstrap.Cleanup()

	versionInfo := version.Get()
	slog.Info("Starting AWS CWT Issuer local server",
		slog.String("version", versionInfo.Version),
		slog.String("commit", versionInfo.Commit),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.Port),
		Handler:           newMux(bootstrap, settings),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Handle graceful shutdown
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		slog.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Starting local development server",
		slog.Int("port", settings.Port),
		slog.String("issueEndpoint", fmt.Sprintf("http://localhost:%d/issue", settings.Port)),
		slog.String("healthEndpoint", fmt.Sprintf("http://localhost:%d/health", settings.Port)),
		slog.String("metricsEndpoint", fmt.Sprintf("http://localhost:%d/metrics", settings.Port)))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("Server stopped")
}

func newMux(bootstrap *handler.Bootstrap, settings ServerSettings) *http.ServeMux {
	apiHandler := handler.NewAwsApiGatewayFromBootstrap(bootstrap)

	mux := http.NewServeMux()
	mux.Handle("/issue", issueHandler(apiHandler.Handler, settings.SimulateLatency))
	mux.Handle("/metrics", metrics.Handler(bootstrap.Registry))
	mux.Handle("/health", healthHandler(bootstrap.Keys.SourceID(), bootstrap.Cache))
	return mux
}

// healthHandler reports the key source and the key cache state. Expired
// cache entries are dropped on every probe.
func healthHandler(keySource string, keyCache cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyCache.Cleanup()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"keySource": keySource,
			"cache":     keyCache.GetStats(),
		}); err != nil {
			slog.Error("Error encoding health check response", "error", err)
		}
	}
}

type apiGatewayFunc func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// issueHandler adapts an HTTP request into an API Gateway proxy event.
func issueHandler(fn apiGatewayFunc, latency time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			time.Sleep(latency)
		}

		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, handler.MaxBodySize+1))
		if err != nil {
			http.Error(w, "Error reading request body", http.StatusBadRequest)
			return
		}
		defer func() {
			if err := r.Body.Close(); err != nil {
				slog.Error("Error closing request body", "error", err)
			}
		}()

		event := events.APIGatewayProxyRequest{
			Body:       string(body),
			Path:       r.URL.Path,
			HTTPMethod: r.Method,
			Headers:    make(map[string]string),
		}
		for k, v := range r.Header {
			if len(v) > 0 {
				event.Headers[k] = v[0]
			}
		}
		event.RequestContext.Identity.SourceIP = r.RemoteAddr
		event.RequestContext.Identity.UserAgent = r.UserAgent()

		response, err := fn(r.Context(), event)
		if err != nil {
			slog.Error("Handler error", slog.String("error", err.Error()))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		for k, v := range response.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(response.StatusCode)

		if _, err := w.Write([]byte(response.Body)); err != nil {
			slog.Error("Error writing response", "error", err)
		}
	}
}

func parseCliFlags() ServerSettings {
	settings := ServerSettings{}

	pflag.IntVarP(&settings.Port, "port", "p", 8080, "Port to listen on")
	pflag.StringVarP(&settings.ConfigPath, "config", "c", "", "Directory holding the config file")
	pflag.StringVar(&settings.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pflag.DurationVar(&settings.SimulateLatency, "latency", 0, "Simulate network latency (e.g., 100ms)")

	pflag.Parse()

	// The bootstrap reads both from the environment
	if settings.ConfigPath != "" {
		if err := os.Setenv("CONFIG_PATH", settings.ConfigPath); err != nil {
			slog.Error("Error setting CONFIG_PATH environment variable", "error", err)
		}
	}
	if settings.LogLevel != "" {
		if err := os.Setenv("LOG_LEVEL", settings.LogLevel); err != nil {
			slog.Error("Error setting LOG_LEVEL environment variable", "error", err)
		}
	}

	return settings
}
