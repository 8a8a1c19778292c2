package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boogy/aws-cwt-issuer/pkg/cose"
	"github.com/boogy/aws-cwt-issuer/pkg/utils"
)

// ValidateRequestData checks the decoded request before any key is touched.
func ValidateRequestData(req *RequestData) error {
	if len(req.Claims) == 0 {
		return ErrMissingClaims
	}

	if len(req.KeyID) > MaxKeyIDLength {
		return ErrKeyIDTooLarge
	}

	if req.Algorithm != "" {
		if _, err := cose.AlgorithmFromName(req.Algorithm); err != nil {
			return err
		}
	}

	return nil
}

// ParseRequestBody parses and validates JSON request body into RequestData.
// Numbers are kept as json.Number so integer claims keep their exact value.
func ParseRequestBody(body string) (*RequestData, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("request body is empty: %w", ErrInvalidJSON)
	}

	if len(body) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var requestData RequestData
	if err := dec.Decode(&requestData); err != nil {
		slog.Error("Failed to unmarshal request body",
			slog.String("error", err.Error()),
			slog.String("bodyPreview", utils.TruncateString(body, 100)))
		return nil, fmt.Errorf("invalid JSON format: %w", ErrInvalidJSON)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after request object: %w", ErrInvalidJSON)
	}

	if err := ValidateRequestData(&requestData); err != nil {
		return nil, err
	}

	return &requestData, nil
}
