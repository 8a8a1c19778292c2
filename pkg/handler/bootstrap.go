package handler

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/boogy/aws-cwt-issuer/pkg/aws"
	"github.com/boogy/aws-cwt-issuer/pkg/cache"
	"github.com/boogy/aws-cwt-issuer/pkg/config"
	"github.com/boogy/aws-cwt-issuer/pkg/keystore"
	"github.com/boogy/aws-cwt-issuer/pkg/metrics"
	s3logger "github.com/boogy/aws-cwt-issuer/pkg/s3logger"
	"github.com/boogy/aws-cwt-issuer/pkg/utils"
	"github.com/boogy/aws-cwt-issuer/pkg/version"
)

// Bootstrap contains all the initialized components needed by handlers
type Bootstrap struct {
	Config    *config.Config
	Consumer  aws.AwsConsumerInterface
	Keys      *keystore.Store
	Cache     cache.Cache
	Metrics   *metrics.Recorder
	Registry  *prometheus.Registry
	S3Logger  *s3logger.S3Logger
	Logger    *slog.Logger
	LogBuffer *bytes.Buffer
}

// NewBootstrap initializes all common components needed by Lambda handlers
func NewBootstrap() (*Bootstrap, error) {
	versionInfo := version.Get()

	// Initialize logger first
	logBuffer, logger := initializeLogger()

	logger.Info(
		fmt.Sprintf("Starting %s", versionInfo.BinName),
		slog.String("version", versionInfo.Version),
		slog.String("commit", versionInfo.Commit),
		slog.String("date", versionInfo.Date),
	)

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	keyCache, err := cache.NewCache(cfg)
	if err != nil {
		logger.Error("Failed to initialize cache", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	s3log := s3logger.NewS3Logger(cfg)
	consumer := aws.NewAwsConsumer(cfg)

	// Read S3 configuration if provided
	if cfg.S3ConfigBucket != "" && cfg.S3ConfigPath != "" {
		if err := consumer.ReadS3Configuration(); err != nil {
			logger.Error("Failed to read S3 configuration", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to read S3 configuration: %w", err)
		}
	}

	keys, err := keystore.NewFromConfig(cfg, consumer, keyCache)
	if err != nil {
		logger.Error("Failed to initialize key store", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to initialize key store: %w", err)
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	logger.Debug("Bootstrap complete",
		slog.String("keySource", keys.SourceID()),
		slog.String("algorithm", cfg.Algorithm().String()),
		slog.Int("privateClaims", cfg.Registry().Len()),
		slog.Bool("ledger", cfg.LedgerTable != ""),
	)

	return &Bootstrap{
		Config:    cfg,
		Consumer:  consumer,
		Keys:      keys,
		Cache:     keyCache,
		Metrics:   recorder,
		Registry:  registry,
		S3Logger:  s3log,
		Logger:    logger,
		LogBuffer: logBuffer,
	}, nil
}

// Processor builds the request processor shared by every event handler.
func (b *Bootstrap) Processor() *RequestProcessor {
	opts := []ProcessorOption{WithMetrics(b.Metrics)}
	if b.S3Logger != nil && b.S3Logger.Enabled() {
		opts = append(opts, WithAuditLog(b.S3Logger))
	}
	return NewRequestProcessor(b.Config, b.Consumer, b.Keys, opts...)
}

// Cleanup handles cleanup operations for the bootstrap components
func (b *Bootstrap) Cleanup() {
	if b.Cache != nil {
		b.Cache.Cleanup()
		b.Logger.Debug("Key cache at shutdown", slog.Any("stats", b.Cache.GetStats()))
	}

	if b.S3Logger == nil {
		return
	}

	// queue the remaining buffer first so the flush ships it
	if err := b.S3Logger.WriteLogToS3(b.LogBuffer); err != nil {
		b.Logger.Error("Failed to write logs to S3", slog.String("error", err.Error()))
	}

	if err := b.S3Logger.Flush(); err != nil {
		b.Logger.Error("Failed to flush logs to S3", slog.String("error", err.Error()))
	}
}

// initializeLogger sets up the global logger with proper configuration
func initializeLogger() (*bytes.Buffer, *slog.Logger) {
	var programLevel = new(slog.LevelVar) // Default to Info
	programLevel.Set(slog.LevelInfo)

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel != "" {
		if level, err := utils.ParseLogLevel(logLevel); err == nil {
			programLevel.Set(level)
		} else {
			slog.Info("Invalid LOG_LEVEL, defaulting to Info", "level", logLevel, "error", err)
		}
	}

	// Create log buffer for S3 logging
	logBuffer := &bytes.Buffer{}

	// Create a handler that writes to both stdout and our buffer
	logHandler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, logBuffer), &slog.HandlerOptions{
		Level: programLevel,
	})

	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	return logBuffer, logger
}

// NewAwsApiGatewayFromBootstrap creates a new API Gateway handler using bootstrap
func NewAwsApiGatewayFromBootstrap(bootstrap *Bootstrap) *AwsApiGateway {
	return NewAwsApiGateway(bootstrap.Processor())
}

// NewAwsLambdaUrlFromBootstrap creates a new Lambda URL handler using bootstrap
func NewAwsLambdaUrlFromBootstrap(bootstrap *Bootstrap) *AwsLambdaUrl {
	return NewAwsLambdaUrl(bootstrap.Processor())
}

// NewAwsApplicationLoadBalancerFromBootstrap creates a new ALB handler using bootstrap
func NewAwsApplicationLoadBalancerFromBootstrap(bootstrap *Bootstrap) *AwsApplicationLoadBalancer {
	return NewAwsApplicationLoadBalancer(bootstrap.Processor())
}
