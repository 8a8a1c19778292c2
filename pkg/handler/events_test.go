package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const issueBody = `{"claims": {"sub": "alice", "visa": 7}, "kid": "ed"}`

func decodeResponse(t *testing.T, body string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return resp
}

func eventProcessor(t *testing.T) (*RequestProcessor, *MockConsumer) {
	t.Helper()
	consumer := new(MockConsumer)
	consumer.On("RecordIssuance", mock.Anything).Return(nil)
	return newTestProcessor(t, testConfig(t, nil), consumer), consumer
}

func TestAwsApiGateway_Handler(t *testing.T) {
	tests := []struct {
		name       string
		event      events.APIGatewayProxyRequest
		wantStatus int
		wantCode   string
	}{
		{
			name:       "issues a token",
			event:      events.APIGatewayProxyRequest{Body: issueBody},
			wantStatus: http.StatusOK,
		},
		{
			name: "base64 body",
			event: events.APIGatewayProxyRequest{
				Body:            base64.StdEncoding.EncodeToString([]byte(issueBody)),
				IsBase64Encoded: true,
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "broken base64",
			event:      events.APIGatewayProxyRequest{Body: "@@", IsBase64Encoded: true},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown claim",
			event:      events.APIGatewayProxyRequest{Body: `{"claims": {"nickname": "al"}}`},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_claims",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor, _ := eventProcessor(t)
			h := NewAwsApiGateway(processor)

			tt.event.RequestContext.RequestID = "apigw-1"
			resp, err := h.Handler(context.Background(), tt.event)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Headers["Content-Type"])

			body := decodeResponse(t, resp.Body)
			assert.Equal(t, "apigw-1", body.RequestID)
			assert.Equal(t, tt.wantCode, body.ErrorCode)
			assert.Equal(t, tt.wantStatus == http.StatusOK, body.Success)
		})
	}
}

func TestAwsLambdaUrl_Handler(t *testing.T) {
	processor, consumer := eventProcessor(t)
	h := NewAwsLambdaUrl(processor)

	event := events.LambdaFunctionURLRequest{Body: issueBody}
	event.RequestContext.RequestID = "url-1"
	event.RequestContext.HTTP.SourceIP = "203.0.113.5"

	resp, err := h.Handler(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RequestID string      `json:"requestId"`
		Data      IssueResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "url-1", body.RequestID)
	assert.Equal(t, "EdDSA", body.Data.Algorithm)
	assert.NotEmpty(t, body.Data.Hex)
	assert.Equal(t, len(body.Data.Base64), body.Data.Base64Length)

	consumer.AssertNumberOfCalls(t, "RecordIssuance", 1)
}

func TestAwsLambdaUrl_HandlerRejectsEmptyBody(t *testing.T) {
	processor, consumer := eventProcessor(t)
	h := NewAwsLambdaUrl(processor)

	resp, err := h.Handler(context.Background(), events.LambdaFunctionURLRequest{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", decodeResponse(t, resp.Body).ErrorCode)

	consumer.AssertNotCalled(t, "RecordIssuance", mock.Anything)
}

func TestAwsApplicationLoadBalancer_Handler(t *testing.T) {
	processor, _ := eventProcessor(t)
	h := NewAwsApplicationLoadBalancer(processor)

	event := events.ALBTargetGroupRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/issue",
		Body:       issueBody,
		Headers: map[string]string{
			"x-amzn-trace-id": "Root=1-abc",
			"x-forwarded-for": "198.51.100.7",
		},
	}

	resp, err := h.Handler(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "200 OK", resp.StatusDescription)
	assert.Equal(t, "Root=1-abc", decodeResponse(t, resp.Body).RequestID)

	event.Body = `{"claims": {"sub": "a"}, "kid": "missing"}`
	resp, err = h.Handler(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "500 Internal Server Error", resp.StatusDescription)
	assert.Equal(t, "key_error", decodeResponse(t, resp.Body).ErrorCode)
}
