package handler

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// AwsLambdaUrl handles AWS Lambda URL requests
type AwsLambdaUrl struct {
	processor *RequestProcessor
}

// NewAwsLambdaUrl creates a new Lambda URL handler
func NewAwsLambdaUrl(processor *RequestProcessor) *AwsLambdaUrl {
	return &AwsLambdaUrl{processor: processor}
}

// Handler is the Lambda function interface for Lambda URLs
func (h *AwsLambdaUrl) Handler(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	httpCtx := event.RequestContext.HTTP
	ctx, cancel := newRequestContext(ctx, event.RequestContext.RequestID, httpCtx.SourceIP, httpCtx.UserAgent)
	defer cancel()
	requestID, _ := ctx.Value(RequestIDContextKey).(string)

	log := slog.With(
		slog.String("requestId", requestID),
		slog.String("rawPath", event.RawPath),
		slog.String("method", httpCtx.Method),
		slog.String("sourceIp", httpCtx.SourceIP),
		slog.String("userAgent", httpCtx.UserAgent),
		slog.String("requestTime", event.RequestContext.Time),
		slog.String("domainName", event.RequestContext.DomainName),
	)

	var statusCode int
	var body string
	if raw, err := requestBody(event.Body, event.IsBase64Encoded); err != nil {
		statusCode, body = errorResponse(ctx, err)
	} else {
		statusCode, body = handle(ctx, h.processor, raw, log)
	}

	return events.LambdaFunctionURLResponse{
		StatusCode:      statusCode,
		Headers:         ResponseHeaders,
		Body:            body,
		IsBase64Encoded: false,
	}, nil
}
