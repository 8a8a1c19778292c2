package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/boogy/aws-cwt-issuer/pkg/aws"
	"github.com/boogy/aws-cwt-issuer/pkg/config"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
	"github.com/boogy/aws-cwt-issuer/pkg/cwt"
	"github.com/boogy/aws-cwt-issuer/pkg/metrics"
	"github.com/boogy/aws-cwt-issuer/pkg/output"
	"github.com/boogy/aws-cwt-issuer/pkg/types"
	"github.com/boogy/aws-cwt-issuer/pkg/utils"
)

// KeyResolver hands out signing keys by kid.
type KeyResolver interface {
	SigningKey(ctx context.Context, kid string) (*cose.Key, error)
}

// IssuanceRecorder receives a record for every issued token.
type IssuanceRecorder interface {
	RecordIssuance(record *types.IssuanceRecord) error
}

// ProcessorOption configures a RequestProcessor.
type ProcessorOption func(*RequestProcessor)

// WithMetrics records issuance counters on rec.
func WithMetrics(rec *metrics.Recorder) ProcessorOption {
	return func(r *RequestProcessor) { r.metrics = rec }
}

// WithAuditLog sends every issuance record to a best effort audit log.
// Unlike the ledger, audit failures do not fail the request.
func WithAuditLog(audit IssuanceRecorder) ProcessorOption {
	return func(r *RequestProcessor) { r.audit = audit }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProcessorOption {
	return func(r *RequestProcessor) { r.now = now }
}

// RequestProcessor contains the core business logic for issuing tokens
type RequestProcessor struct {
	config   *config.Config
	consumer aws.AwsConsumerInterface
	keys     KeyResolver
	metrics  *metrics.Recorder
	audit    IssuanceRecorder
	now      func() time.Time
}

// NewRequestProcessor creates a new instance of request processor
func NewRequestProcessor(cfg *config.Config, consumer aws.AwsConsumerInterface, keys KeyResolver, opts ...ProcessorOption) *RequestProcessor {
	r := &RequestProcessor{
		config:   cfg,
		consumer: consumer,
		keys:     keys,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessRequest signs the requested claims and records the issuance.
func (r *RequestProcessor) ProcessRequest(ctx context.Context, requestData *RequestData, requestID string, log *slog.Logger) (*IssueResult, error) {
	startTime, _ := ctx.Value(StartTimeContextKey).(time.Time)
	if startTime.IsZero() {
		startTime = r.now()
	}

	result, err := r.issue(ctx, requestData, requestID, log)
	if r.metrics != nil {
		r.metrics.Observe(time.Since(startTime))
		if err != nil {
			code, _, _ := classifyError(err)
			r.metrics.Failed(code)
		}
	}
	if err != nil {
		return nil, err
	}

	log.Info("Token issued",
		slog.String("tokenId", result.TokenID),
		slog.String("kid", result.KeyID),
		slog.String("algorithm", result.Algorithm),
		slog.Int("size", result.Size),
		slog.Duration("totalTime", time.Since(startTime)))
	return result, nil
}

func (r *RequestProcessor) issue(ctx context.Context, requestData *RequestData, requestID string, log *slog.Logger) (*IssueResult, error) {
	log.Debug("Resolving signing key", slog.String("kid", requestData.KeyID))

	key, err := r.keys.SigningKey(ctx, requestData.KeyID)
	if err != nil {
		log.Error("Failed to resolve signing key",
			slog.String("kid", requestData.KeyID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}

	alg := r.config.Algorithm()
	if requestData.Algorithm != "" {
		if alg, err = cose.AlgorithmFromName(requestData.Algorithm); err != nil {
			return nil, err
		}
	}
	if alg == 0 {
		alg = key.Algorithm()
	}

	payload, tokenID := r.withTokenID(requestData.Claims)

	now := r.now()
	encoder := r.config.NewEncoder(
		cwt.WithAlgorithm(alg),
		cwt.WithClock(func() time.Time { return now }),
	)

	token, err := encoder.Encode(payload, key)
	if err != nil {
		log.Error("Failed to encode token", slog.String("error", err.Error()))
		return nil, err
	}

	encodings, err := output.Render(token)
	if err != nil {
		return nil, err
	}

	fingerprint := utils.Fingerprint(token)
	if tokenID == "" {
		tokenID = fingerprint
	}

	record := &types.IssuanceRecord{
		TokenID:     tokenID,
		Fingerprint: fingerprint,
		Subject:     stringClaim(payload, "sub"),
		Issuer:      stringClaim(payload, "iss"),
		KeyID:       string(key.KeyID()),
		Algorithm:   alg.JOSEName(),
		RequestID:   requestID,
		Size:        len(token),
		IssuedAt:    now,
		ExpiresAt:   r.expiresAt(payload, now),
	}
	if record.Issuer == "" {
		record.Issuer = r.config.Issuer
	}

	log.Debug("Recording issuance",
		slog.String("tokenId", tokenID),
		slog.String("token", utils.RedactToken(encodings.Hex, 8, 8)))

	if err := r.consumer.RecordIssuance(record); err != nil {
		log.Error("Failed to record issuance", slog.String("error", err.Error()))
		if errors.Is(err, aws.ErrDuplicateTokenID) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	if r.audit != nil {
		if err := r.audit.RecordIssuance(record); err != nil {
			log.Warn("Failed to write audit record", slog.String("error", err.Error()))
		}
	}

	r.metrics.Issued(alg.JOSEName(), len(token))

	result := &IssueResult{
		Encodings: encodings,
		TokenID:   tokenID,
		KeyID:     record.KeyID,
		Algorithm: record.Algorithm,
	}
	if !record.ExpiresAt.IsZero() {
		result.ExpiresAt = record.ExpiresAt.Unix()
	}
	return result, nil
}

// withTokenID returns the payload to encode and the token id to record.
// A cti is generated when the ledger or the token settings ask for one.
func (r *RequestProcessor) withTokenID(payload map[string]any) (map[string]any, string) {
	if v, ok := payload["cti"]; ok {
		switch cti := v.(type) {
		case string:
			return payload, cti
		case []byte:
			return payload, hex.EncodeToString(cti)
		default:
			return payload, fmt.Sprint(cti)
		}
	}

	generate := r.config.LedgerTable != "" || (r.config.Token != nil && r.config.Token.GenerateCTI)
	if !generate {
		return payload, ""
	}

	id := uuid.NewString()
	out := maps.Clone(payload)
	out["cti"] = id
	return out, id
}

// expiresAt reads exp from the payload, falling back to the configured
// lifetime.
func (r *RequestProcessor) expiresAt(payload map[string]any, now time.Time) time.Time {
	switch exp := payload["exp"].(type) {
	case json.Number:
		if secs, err := exp.Int64(); err == nil {
			return time.Unix(secs, 0)
		}
	case int:
		return time.Unix(int64(exp), 0)
	case int64:
		return time.Unix(exp, 0)
	case float64:
		return time.Unix(int64(exp), 0)
	}

	if r.config.Token != nil && r.config.Token.ExpiresIn > 0 {
		return now.Add(r.config.Token.ExpiresIn)
	}
	return time.Time{}
}

func stringClaim(payload map[string]any, name string) string {
	s, _ := payload[name].(string)
	return s
}
