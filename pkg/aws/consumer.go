package aws

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/viper"

	acicfg "github.com/boogy/aws-cwt-issuer/pkg/config"
	"github.com/boogy/aws-cwt-issuer/pkg/types"
)

// ErrDuplicateTokenID is returned when the ledger already holds a record
// for the token's cti.
var ErrDuplicateTokenID = errors.New("token id already recorded")

// ledgerRetention is how long DynamoDB keeps a record after the token expired.
const ledgerRetention = 30 * 24 * time.Hour

// AwsConsumerInterface encapsulates all actions performs with the AWS services
type AwsConsumerInterface interface {
	ReadS3Configuration() error
	GetS3Object(bucket, key string) (io.ReadCloser, error)
	RecordIssuance(record *types.IssuanceRecord) error
}

// AwsConsumer is the implementation of AwsConsumerInterface
type AwsConsumer struct {
	AWS    AwsServiceWrapperInterface
	Config *acicfg.Config
}

// NewAwsConsumer creates a new AwsConsumer
func NewAwsConsumer(cfg *acicfg.Config) *AwsConsumer {
	return &AwsConsumer{
		AWS:    NewAwsServiceWrapper(),
		Config: cfg,
	}
}

// ReadS3Configuration overlays the JSON document stored at
// S3ConfigBucket/S3ConfigPath onto the current configuration and
// validates the result.
func (a *AwsConsumer) ReadS3Configuration() error {
	if a.Config.S3ConfigBucket == "" || a.Config.S3ConfigPath == "" {
		return errors.New("S3ConfigBucket and S3ConfigPath options must be set")
	}

	content, err := a.AWS.GetS3Object(a.Config.S3ConfigBucket, a.Config.S3ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to get S3 configuration object: %w", err)
	}
	defer func() {
		if cerr := content.Close(); cerr != nil {
			slog.Error("Error closing S3 configuration object", "error", cerr)
		}
	}()

	// A dedicated viper instance keeps the mapstructure tags and duration
	// decoding of the file based config without touching the global one.
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(content); err != nil {
		return fmt.Errorf("unable to decode configuration from S3: %w", err)
	}
	if err := v.Unmarshal(a.Config); err != nil {
		return fmt.Errorf("unable to decode configuration from S3: %w", err)
	}
	if err := a.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration from S3: %w", err)
	}

	slog.Debug("Successfully imported config",
		slog.String("bucket", a.Config.S3ConfigBucket),
		slog.String("path", a.Config.S3ConfigPath),
		slog.Int("privateClaims", a.Config.Registry().Len()),
	)
	return nil
}

// GetS3Object retrieves an object from S3
func (a *AwsConsumer) GetS3Object(bucket, key string) (io.ReadCloser, error) {
	if bucket == "" {
		return nil, errors.New("bucket name cannot be empty")
	}

	if key == "" {
		return nil, errors.New("object key cannot be empty")
	}

	return a.AWS.GetS3Object(bucket, key)
}

// RecordIssuance writes the record to the ledger table. It is a no-op when
// no table is configured. A record whose token id is already present is
// rejected with ErrDuplicateTokenID.
func (a *AwsConsumer) RecordIssuance(record *types.IssuanceRecord) error {
	if a.Config == nil || a.Config.LedgerTable == "" {
		return nil
	}
	if record == nil {
		return errors.New("issuance record cannot be nil")
	}
	if record.TokenID == "" {
		return errors.New("issuance record requires a token id")
	}

	item := map[string]dbtypes.AttributeValue{
		"token_id":    &dbtypes.AttributeValueMemberS{Value: record.TokenID},
		"fingerprint": &dbtypes.AttributeValueMemberS{Value: record.Fingerprint},
		"algorithm":   &dbtypes.AttributeValueMemberS{Value: record.Algorithm},
		"size":        &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(record.Size)},
		"issued_at":   &dbtypes.AttributeValueMemberS{Value: record.IssuedAt.UTC().Format(time.RFC3339)},
	}
	optional := map[string]string{
		"subject":    record.Subject,
		"issuer":     record.Issuer,
		"kid":        record.KeyID,
		"request_id": record.RequestID,
	}
	for name, value := range optional {
		if value != "" {
			item[name] = &dbtypes.AttributeValueMemberS{Value: value}
		}
	}
	if !record.ExpiresAt.IsZero() {
		item["expires_at"] = &dbtypes.AttributeValueMemberS{Value: record.ExpiresAt.UTC().Format(time.RFC3339)}
		item["ttl"] = &dbtypes.AttributeValueMemberN{
			Value: strconv.FormatInt(record.ExpiresAt.Add(ledgerRetention).Unix(), 10),
		}
	}

	_, err := a.AWS.PutItem(&dynamodb.PutItemInput{
		TableName:           aws.String(a.Config.LedgerTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(token_id)"),
	})
	if err != nil {
		var conditional *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditional) {
			return fmt.Errorf("%w: %s", ErrDuplicateTokenID, record.TokenID)
		}
		return fmt.Errorf("unable to record issuance: %w", err)
	}

	slog.Debug("Recorded issuance",
		slog.String("tokenId", record.TokenID),
		slog.String("table", a.Config.LedgerTable),
	)
	return nil
}
