package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// AwsApplicationLoadBalancer handles AWS Application Load Balancer requests
type AwsApplicationLoadBalancer struct {
	processor *RequestProcessor
}

// NewAwsApplicationLoadBalancer creates a new Application Load Balancer handler
func NewAwsApplicationLoadBalancer(processor *RequestProcessor) *AwsApplicationLoadBalancer {
	return &AwsApplicationLoadBalancer{processor: processor}
}

// Handler is the Lambda function interface for Application Load Balancer
func (h *AwsApplicationLoadBalancer) Handler(ctx context.Context, event events.ALBTargetGroupRequest) (events.ALBTargetGroupResponse, error) {
	// ALB carries no request id or source address outside the headers
	ctx, cancel := newRequestContext(ctx,
		event.Headers["x-amzn-trace-id"],
		event.Headers["x-forwarded-for"],
		event.Headers["user-agent"],
	)
	defer cancel()
	requestID, _ := ctx.Value(RequestIDContextKey).(string)

	log := slog.With(
		slog.String("requestId", requestID),
		slog.String("path", event.Path),
		slog.String("method", event.HTTPMethod),
		slog.String("sourceIp", event.Headers["x-forwarded-for"]),
		slog.String("userAgent", event.Headers["user-agent"]),
		slog.String("targetGroup", event.RequestContext.ELB.TargetGroupArn),
	)

	var statusCode int
	var body string
	if raw, err := requestBody(event.Body, event.IsBase64Encoded); err != nil {
		statusCode, body = errorResponse(ctx, err)
	} else {
		statusCode, body = handle(ctx, h.processor, raw, log)
	}

	return events.ALBTargetGroupResponse{
		StatusCode:        statusCode,
		StatusDescription: statusDescription(statusCode),
		Headers:           ResponseHeaders,
		Body:              body,
		IsBase64Encoded:   false,
	}, nil
}

func statusDescription(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}
