// Package s3logger ships the function's JSON log lines and issuance audit
// records to S3 as gzip compressed batches.
package s3logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	acicfg "github.com/boogy/aws-cwt-issuer/pkg/config"
	"github.com/boogy/aws-cwt-issuer/pkg/types"
)

const (
	// DefaultTimeout is the default timeout for S3 operations
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is the default number of retries for S3 operations
	DefaultRetries = 3

	// DefaultBatchSize is the default number of entries to batch before writing to S3
	DefaultBatchSize = 10

	// DefaultMaxBatchWait is the default maximum time to wait before writing a batch
	DefaultMaxBatchWait = 30 * time.Second

	// auditPrefix is appended to the log prefix for issuance audit objects
	auditPrefix = "issued"
)

// s3ClientInterface defines the subset of S3 API methods used by this logger
type s3ClientInterface interface {
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Settings controls where and how batches are written.
type Settings struct {
	Bucket string
	Prefix string

	Timeout     time.Duration // Timeout for S3 operations
	MaxRetries  int           // Maximum number of retries for S3 operations
	BatchSize   int           // Number of entries to batch before writing to S3
	MaxBatchAge time.Duration // Maximum time to wait before writing a batch

	IncludeUUID   bool   // Include a UUID in object keys
	FileExtension string // Extension of written objects

	ExtraTags map[string]string // Extra tags to add to S3 objects
}

// S3Logger batches log output and issuance records and writes them to S3.
// A logger built from a configuration with S3 logging disabled accepts
// every call and writes nothing.
type S3Logger struct {
	enabled  bool
	s3Client s3ClientInterface
	settings Settings

	mu         sync.Mutex
	logBatch   [][]byte
	auditBatch [][]byte
	batchTimer *time.Timer
	stopped    bool

	ctx     context.Context
	cancel  context.CancelFunc
	timeNow func() time.Time
}

// Option adjusts the logger settings.
type Option func(*S3Logger)

// WithBatchSize sets the number of entries to batch before writing to S3
func WithBatchSize(size int) Option {
	return func(l *S3Logger) { l.settings.BatchSize = size }
}

// WithMaxBatchAge sets the maximum time to wait before writing a batch
func WithMaxBatchAge(age time.Duration) Option {
	return func(l *S3Logger) { l.settings.MaxBatchAge = age }
}

// WithExtraTag adds an extra tag to S3 objects
func WithExtraTag(key, value string) Option {
	return func(l *S3Logger) {
		if l.settings.ExtraTags == nil {
			l.settings.ExtraTags = make(map[string]string)
		}
		l.settings.ExtraTags[key] = value
	}
}

// WithIncludeUUID sets whether object keys carry a random UUID
func WithIncludeUUID(include bool) Option {
	return func(l *S3Logger) { l.settings.IncludeUUID = include }
}

// withClient injects the S3 client, skipping AWS configuration loading.
func withClient(client s3ClientInterface) Option {
	return func(l *S3Logger) { l.s3Client = client }
}

// withClock replaces time.Now.
func withClock(now func() time.Time) Option {
	return func(l *S3Logger) { l.timeNow = now }
}

// NewS3Logger creates a new S3Logger with the given configuration
func NewS3Logger(cfg *acicfg.Config, opts ...Option) *S3Logger {
	ctx, cancel := context.WithCancel(context.Background())

	l := &S3Logger{
		enabled: cfg != nil && cfg.LogToS3 && cfg.LogBucket != "",
		ctx:     ctx,
		cancel:  cancel,
		timeNow: time.Now,
		settings: Settings{
			Timeout:       DefaultTimeout,
			MaxRetries:    DefaultRetries,
			BatchSize:     DefaultBatchSize,
			MaxBatchAge:   DefaultMaxBatchWait,
			IncludeUUID:   true,
			FileExtension: ".json.gz",
		},
	}
	if cfg != nil {
		l.settings.Bucket = cfg.LogBucket
		l.settings.Prefix = cfg.LogPrefix
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.enabled {
		if l.s3Client == nil {
			l.initS3Client()
		}
		l.startBatchTimer()
	}

	return l
}

// Enabled reports whether anything is shipped to S3.
func (l *S3Logger) Enabled() bool {
	return l.enabled && l.s3Client != nil
}

// initS3Client initializes the S3 client
func (l *S3Logger) initS3Client() {
	awsConfig, err := config.LoadDefaultConfig(l.ctx, config.WithRetryMaxAttempts(l.settings.MaxRetries))
	if err != nil {
		slog.Error("Failed to load AWS config for S3 logger",
			slog.String("error", err.Error()))
		return
	}

	l.s3Client = s3.NewFromConfig(awsConfig)
	slog.Debug("S3 client initialized for logging",
		slog.String("bucket", l.settings.Bucket),
		slog.String("prefix", l.settings.Prefix))
}

// startBatchTimer arms the timer for batch flushing unless Close has run
func (l *S3Logger) startBatchTimer() {
	if l.settings.MaxBatchAge <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.batchTimer = time.AfterFunc(l.settings.MaxBatchAge, func() {
		if err := l.Flush(); err != nil {
			slog.Error("Failed to flush log batch on timer",
				slog.String("error", err.Error()))
		}
		l.startBatchTimer()
	})
}

// WriteLogToS3 moves the content of buf into the pending batch. buf is
// reset whether or not logging is enabled.
func (l *S3Logger) WriteLogToS3(buf *bytes.Buffer) error {
	if buf == nil {
		return nil
	}
	defer buf.Reset()

	if !l.Enabled() || buf.Len() == 0 {
		return nil
	}

	entry := bytes.Clone(buf.Bytes())

	l.mu.Lock()
	defer l.mu.Unlock()

	l.logBatch = append(l.logBatch, entry)
	if len(l.logBatch) >= l.settings.BatchSize {
		return l.flushBatch(&l.logBatch, "")
	}
	return nil
}

// RecordIssuance queues an audit line for an issued token.
func (l *S3Logger) RecordIssuance(record *types.IssuanceRecord) error {
	if !l.Enabled() || record == nil {
		return nil
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode issuance record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.auditBatch = append(l.auditBatch, line)
	if len(l.auditBatch) >= l.settings.BatchSize {
		return l.flushBatch(&l.auditBatch, auditPrefix)
	}
	return nil
}

// Flush forces all pending entries to be written to S3
func (l *S3Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return errors.Join(
		l.flushBatch(&l.logBatch, ""),
		l.flushBatch(&l.auditBatch, auditPrefix),
	)
}

// flushBatch writes batch as one object and empties it on success.
// Caller must hold mutex
func (l *S3Logger) flushBatch(batch *[][]byte, sub string) error {
	if len(*batch) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, entry := range *batch {
		buf.Write(entry)
		if !bytes.HasSuffix(entry, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}

	compressed, err := compressGzip(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to compress log data: %w", err)
	}

	if err := l.WriteObject(l.settings.Bucket, l.generateS3Key(sub), compressed); err != nil {
		return err
	}

	*batch = (*batch)[:0]
	return nil
}

// generateS3Key builds prefix[/sub]/YYYY/MM/DD/[uuid-]YYYYMMDD-HHMMSS.ext
func (l *S3Logger) generateS3Key(sub string) string {
	now := l.timeNow().UTC()

	var parts []string
	if p := strings.Trim(l.settings.Prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if sub != "" {
		parts = append(parts, sub)
	}
	parts = append(parts, now.Format("2006/01/02"))

	filename := now.Format("20060102-150405")
	if l.settings.IncludeUUID {
		filename = uuid.New().String() + "-" + filename
	}
	parts = append(parts, filename+l.settings.FileExtension)

	return strings.Join(parts, "/")
}

// WriteObject writes compressed data to S3
func (l *S3Logger) WriteObject(bucket, key string, body []byte) error {
	if l.s3Client == nil {
		return errors.New("S3 client not initialized")
	}

	ctx, cancel := context.WithTimeout(l.ctx, l.settings.Timeout)
	defer cancel()

	metadata := map[string]string{
		"source":     "aws-cwt-issuer",
		"created-at": l.timeNow().UTC().Format(time.RFC3339),
	}
	maps.Copy(metadata, l.settings.ExtraTags)

	tags := url.Values{}
	for k, v := range metadata {
		tags.Set(k, v)
	}

	_, err := l.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(body),
		ContentType:       aws.String("application/x-ndjson"),
		ContentEncoding:   aws.String("gzip"),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		Tagging:           aws.String(tags.Encode()),
		Metadata:          metadata,
	})
	if err != nil {
		slog.Error("Failed to write logs to S3",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to write logs to S3: %w", err)
	}

	slog.Debug("Successfully wrote logs to S3",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("bytes", len(body)))

	return nil
}

// Close stops the batch timer and flushes any remaining entries
func (l *S3Logger) Close() error {
	l.mu.Lock()
	l.stopped = true
	if l.batchTimer != nil {
		l.batchTimer.Stop()
	}
	l.mu.Unlock()

	// the final flush still needs l.ctx
	err := l.Flush()
	l.cancel()
	return err
}

// compressGzip compresses the given data using gzip
func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)

	if _, err := gzWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to gzip writer: %w", err)
	}

	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}
