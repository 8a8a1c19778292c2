package handler

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// AwsApiGateway handles AWS API Gateway proxy integration requests
type AwsApiGateway struct {
	processor *RequestProcessor
}

// NewAwsApiGateway creates a new API Gateway handler
func NewAwsApiGateway(processor *RequestProcessor) *AwsApiGateway {
	return &AwsApiGateway{processor: processor}
}

// Handler is the Lambda function interface for API Gateway
func (h *AwsApiGateway) Handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	identity := event.RequestContext.Identity
	ctx, cancel := newRequestContext(ctx, event.RequestContext.RequestID, identity.SourceIP, identity.UserAgent)
	defer cancel()
	requestID, _ := ctx.Value(RequestIDContextKey).(string)

	log := slog.With(
		slog.String("requestId", requestID),
		slog.String("path", event.Path),
		slog.String("method", event.HTTPMethod),
		slog.String("sourceIp", identity.SourceIP),
		slog.String("userAgent", identity.UserAgent),
		slog.String("requestTime", event.RequestContext.RequestTime),
		slog.String("domainName", event.RequestContext.DomainName),
	)

	var statusCode int
	var body string
	if raw, err := requestBody(event.Body, event.IsBase64Encoded); err != nil {
		statusCode, body = errorResponse(ctx, err)
	} else {
		statusCode, body = handle(ctx, h.processor, raw, log)
	}

	return events.APIGatewayProxyResponse{
		StatusCode:      statusCode,
		Headers:         ResponseHeaders,
		Body:            body,
		IsBase64Encoded: false,
	}, nil
}
