package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/boogy/aws-cwt-issuer/pkg/aws"
	"github.com/boogy/aws-cwt-issuer/pkg/claims"
	"github.com/boogy/aws-cwt-issuer/pkg/codec"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
)

// newRequestContext attaches request tracking values and the request timeout.
func newRequestContext(ctx context.Context, requestID, sourceIP, userAgent string) (context.Context, context.CancelFunc) {
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx = context.WithValue(ctx, RequestIDContextKey, requestID)
	ctx = context.WithValue(ctx, StartTimeContextKey, time.Now())
	ctx = context.WithValue(ctx, SourceIPContextKey, sourceIP)
	ctx = context.WithValue(ctx, UserAgentContextKey, userAgent)

	return context.WithTimeout(ctx, DefaultTimeout)
}

// requestBody returns the raw body, decoding it when the event marks it as
// base64.
func requestBody(body string, isBase64 bool) (string, error) {
	if !isBase64 {
		return body, nil
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("invalid base64 body: %w", ErrInvalidJSON)
	}
	return string(raw), nil
}

// classifyError maps an issuance error to its error code, public message and
// HTTP status.
func classifyError(err error) (string, string, int) {
	var (
		unknownClaim *claims.UnknownClaimNameError
		badValue     *codec.UnsupportedValueTypeError
		badKey       *cose.KeyFormatError
		badAlg       *cose.UnsupportedAlgorithmError
		signErr      *cose.SigningPrimitiveError
	)

	switch {
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrBodyTooLarge),
		errors.Is(err, ErrMissingClaims), errors.Is(err, ErrKeyIDTooLarge):
		return "invalid_request", "Invalid request parameters", http.StatusBadRequest
	case errors.As(err, &unknownClaim), errors.As(err, &badValue):
		return "invalid_claims", "The claims cannot be encoded", http.StatusBadRequest
	case errors.Is(err, ErrKeyUnavailable), errors.As(err, &badKey),
		errors.Is(err, cose.ErrKeyNotFound), errors.Is(err, cose.ErrEmptyKeySet):
		return "key_error", "The signing key is unavailable", http.StatusInternalServerError
	case errors.As(err, &badAlg):
		return "unsupported_algorithm", "The requested algorithm is not supported for this key", http.StatusBadRequest
	case errors.As(err, &signErr):
		return "signing_failed", "Failed to sign the token", http.StatusInternalServerError
	case errors.Is(err, aws.ErrDuplicateTokenID):
		return "duplicate_token_id", "A token with this cti was already issued", http.StatusConflict
	case errors.Is(err, ErrLedgerWrite):
		return "ledger_error", "Failed to record the issued token", http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", "The request timed out", http.StatusGatewayTimeout
	}
	return "internal_error", "An internal error occurred", http.StatusInternalServerError
}

func processingTime(ctx context.Context) int64 {
	if startTime, ok := ctx.Value(StartTimeContextKey).(time.Time); ok {
		return time.Since(startTime).Milliseconds()
	}
	return 0
}

// errorResponse builds the status code and JSON body for a failed request.
func errorResponse(ctx context.Context, err error) (int, string) {
	requestID, _ := ctx.Value(RequestIDContextKey).(string)
	processingMS := processingTime(ctx)
	errCode, errMsg, statusCode := classifyError(err)

	slog.Error("Request error",
		slog.String("requestId", requestID),
		slog.String("errorCode", errCode),
		slog.String("error", err.Error()),
		slog.Int("status", statusCode),
		slog.Int64("processingMs", processingMS))

	response := Response{
		Success:      false,
		StatusCode:   statusCode,
		ErrorCode:    errCode,
		Message:      errMsg,
		ErrorDetails: err.Error(),
		RequestID:    requestID,
		ProcessingMS: processingMS,
	}

	body, jsonErr := json.Marshal(response)
	if jsonErr != nil {
		fallback, _ := json.Marshal(map[string]string{"error": err.Error()})
		return http.StatusInternalServerError, string(fallback)
	}
	return statusCode, string(body)
}

// successResponse builds the status code and JSON body for an issued token.
func successResponse(ctx context.Context, result *IssueResult) (int, string) {
	requestID, _ := ctx.Value(RequestIDContextKey).(string)
	processingMS := processingTime(ctx)

	response := Response{
		Success:      true,
		StatusCode:   http.StatusOK,
		Message:      "Token issued",
		RequestID:    requestID,
		ProcessingMS: processingMS,
		Data:         result,
	}

	body, err := json.Marshal(response)
	if err != nil {
		return errorResponse(ctx, fmt.Errorf("failed to marshal response: %w", err))
	}

	slog.Debug("Response successful",
		slog.String("requestId", requestID),
		slog.Int64("processingMs", processingMS))

	return http.StatusOK, string(body)
}

// handle runs the shared parse, issue and respond flow for every event type.
func handle(ctx context.Context, processor *RequestProcessor, body string, log *slog.Logger) (int, string) {
	requestID, _ := ctx.Value(RequestIDContextKey).(string)

	requestData, err := ParseRequestBody(body)
	if err != nil {
		code, _, _ := classifyError(err)
		processor.metrics.Failed(code)
		return errorResponse(ctx, err)
	}

	result, err := processor.ProcessRequest(ctx, requestData, requestID, log)
	if err != nil {
		return errorResponse(ctx, err)
	}

	return successResponse(ctx, result)
}
