package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/boogy/aws-cwt-issuer/pkg/claims"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
	"github.com/boogy/aws-cwt-issuer/pkg/cwt"
	"github.com/boogy/aws-cwt-issuer/pkg/utils"
)

var (
	once              sync.Once
	instance          *Config
	keyFile           = "/etc/aws-cwt-issuer/keys.jwks" // Default JWKS location
	tokenExpiresIn    = "1h"                            // Default token lifetime
	cacheType         = "memory"                        // Default cache type
	cacheTTL          = "15m"                           // Default cache TTL
	cacheMaxLocalSize = 10                              // Default max local size for memory cache
)

// KeySource says where the signing JWKS is loaded from. S3 wins when both
// are set.
type KeySource struct {
	File     string `mapstructure:"file"`      // Local JWKS or single JWK file
	S3Bucket string `mapstructure:"s3_bucket"` // S3 bucket holding the JWKS
	S3Path   string `mapstructure:"s3_path"`   // S3 object key of the JWKS
	KeyID    string `mapstructure:"kid"`       // Default kid; empty selects the first key
}

// Token holds the defaults applied to every minted token.
type Token struct {
	Algorithm    string        `mapstructure:"algorithm"`      // JOSE or COSE algorithm name; empty uses the key's
	ExpiresIn    time.Duration `mapstructure:"expires_in"`     // exp = now + ExpiresIn when the request has no exp
	SetIssuedAt  bool          `mapstructure:"set_issued_at"`  // Add iat when the request has none
	SetNotBefore bool          `mapstructure:"set_not_before"` // Add nbf when the request has none
	GenerateCTI  bool          `mapstructure:"generate_cti"`   // Add a random cti when the request has none
	IncludeKeyID bool          `mapstructure:"include_kid"`    // Put the kid in the unprotected header
	TagCWT       bool          `mapstructure:"tag_cwt"`        // Wrap the token in CBOR tag 61
}

type Cache struct {
	Type         string        `mapstructure:"type"`           // Cache type ("memory")
	TTL          time.Duration `mapstructure:"ttl"`            // How long a parsed key set is reused
	MaxLocalSize int           `mapstructure:"max_local_size"` // Maximum number of cached key sets
}

type Config struct {
	Issuer         string `mapstructure:"issuer"`           // Issuer is the default iss claim
	S3ConfigBucket string `mapstructure:"s3_config_bucket"` // S3ConfigBucket is the S3 bucket where the configuration file is stored
	S3ConfigPath   string `mapstructure:"s3_config_path"`   // S3ConfigPath is the path to the configuration file in the S3 bucket
	LedgerTable    string `mapstructure:"ledger_table"`     // LedgerTable is the DynamoDB table issuance records are written to

	Key   *KeySource `mapstructure:"key"`
	Token *Token     `mapstructure:"token"`

	// PrivateClaims lists the application claim names and their integer keys
	PrivateClaims []claims.PrivateClaim `mapstructure:"private_claims"`
	// PrivateClaimNames is the env friendly form: "name=-70001,other=-70002"
	PrivateClaimNames string `mapstructure:"private_claim_names"`

	// Logging configuration directly to S3 (duplicates cloudwatch logs)
	LogToS3   bool   `mapstructure:"log_to_s3"`  // LogToS3 is a flag to enable logging to S3
	LogBucket string `mapstructure:"log_bucket"` // LogBucket is the S3 bucket to log to
	LogPrefix string `mapstructure:"log_prefix"` // LogPrefix is the S3 key prefix to log to
	Cache     *Cache `mapstructure:"cache"`      // Cache is the key set cache configuration

	// Built by Validate - not serialized
	registry  *claims.Registry `mapstructure:"-"`
	algorithm cose.Algorithm   `mapstructure:"-"`
}

// NewConfig initializes and returns the configuration. It ensures that the config is loaded only once.
func NewConfig() (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		err = instance.LoadConfig()
	})
	return instance, err
}

// LoadConfig attempts to load configuration from a file or uses default values if not found.
func (c *Config) LoadConfig() error {
	// Set default config file name and path (yaml, json or toml or ...)
	configName := utils.GetEnv("CONFIG_NAME", "config") // Configuration file name without extension
	configPath := utils.GetEnv("CONFIG_PATH", ".")      // Configuration file path, default to current directory

	// Set environment variable handling first
	viper.SetEnvPrefix("aci") // Set the environment variable prefix ex: "ACI_"
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.AddConfigPath("/etc/aws-cwt-issuer/")
	viper.AddConfigPath(configPath)
	viper.SetConfigName(configName)

	// Set default values
	viper.SetDefault("key.file", keyFile)
	viper.SetDefault("token.expires_in", tokenExpiresIn)
	viper.SetDefault("token.set_issued_at", true)
	viper.SetDefault("cache.type", cacheType)
	viper.SetDefault("cache.ttl", cacheTTL)
	viper.SetDefault("cache.max_local_size", cacheMaxLocalSize)

	// Explicitly bind all config keys to environment variables
	// Core settings
	_ = viper.BindEnv("issuer")              // ACI_ISSUER
	_ = viper.BindEnv("s3_config_bucket")    // ACI_S3_CONFIG_BUCKET
	_ = viper.BindEnv("s3_config_path")      // ACI_S3_CONFIG_PATH
	_ = viper.BindEnv("ledger_table")        // ACI_LEDGER_TABLE
	_ = viper.BindEnv("private_claim_names") // ACI_PRIVATE_CLAIM_NAMES

	// Key settings
	_ = viper.BindEnv("key.file")      // ACI_KEY_FILE
	_ = viper.BindEnv("key.s3_bucket") // ACI_KEY_S3_BUCKET
	_ = viper.BindEnv("key.s3_path")   // ACI_KEY_S3_PATH
	_ = viper.BindEnv("key.kid")       // ACI_KEY_KID

	// Token settings
	_ = viper.BindEnv("token.algorithm")      // ACI_TOKEN_ALGORITHM
	_ = viper.BindEnv("token.expires_in")     // ACI_TOKEN_EXPIRES_IN
	_ = viper.BindEnv("token.set_issued_at")  // ACI_TOKEN_SET_ISSUED_AT
	_ = viper.BindEnv("token.set_not_before") // ACI_TOKEN_SET_NOT_BEFORE
	_ = viper.BindEnv("token.generate_cti")   // ACI_TOKEN_GENERATE_CTI
	_ = viper.BindEnv("token.include_kid")    // ACI_TOKEN_INCLUDE_KID
	_ = viper.BindEnv("token.tag_cwt")        // ACI_TOKEN_TAG_CWT

	// Cache settings
	_ = viper.BindEnv("cache.type")           // ACI_CACHE_TYPE
	_ = viper.BindEnv("cache.ttl")            // ACI_CACHE_TTL
	_ = viper.BindEnv("cache.max_local_size") // ACI_CACHE_MAX_LOCAL_SIZE

	// Logging settings
	_ = viper.BindEnv("log_to_s3")  // ACI_LOG_TO_S3
	_ = viper.BindEnv("log_bucket") // ACI_LOG_BUCKET
	_ = viper.BindEnv("log_prefix") // ACI_LOG_PREFIX

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; rely on defaults
		} else {
			return fmt.Errorf("problem reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return c.Validate()
}

// Validate checks if the configuration is valid and builds the claim
// registry and signing algorithm from it.
func (c *Config) Validate() error {
	if c.Key == nil || (c.Key.File == "" && c.Key.S3Bucket == "") {
		return errors.New("a key file or key S3 bucket is required")
	}
	if c.Key.S3Bucket != "" && c.Key.S3Path == "" {
		return errors.New("key S3 path is required when a key S3 bucket is set")
	}
	if c.Token == nil {
		c.Token = &Token{}
	}
	if c.Token.ExpiresIn < 0 {
		return errors.New("token expires_in must not be negative")
	}
	if c.Cache == nil {
		c.Cache = &Cache{Type: cacheType, MaxLocalSize: cacheMaxLocalSize}
	}
	if c.Cache.Type != "" && c.Cache.Type != "memory" {
		return fmt.Errorf("unsupported cache type '%s'", c.Cache.Type)
	}

	private := append([]claims.PrivateClaim(nil), c.PrivateClaims...)
	named, err := parseClaimNames(c.PrivateClaimNames)
	if err != nil {
		return err
	}
	private = append(private, named...)

	c.registry, err = claims.NewRegistry(private...)
	if err != nil {
		return fmt.Errorf("invalid private claims: %w", err)
	}

	c.algorithm = 0
	if c.Token.Algorithm != "" {
		c.algorithm, err = cose.AlgorithmFromName(c.Token.Algorithm)
		if err != nil {
			return fmt.Errorf("invalid token algorithm: %w", err)
		}
	}

	return nil
}

// parseClaimNames parses "name=key" pairs separated by commas.
func parseClaimNames(s string) ([]claims.PrivateClaim, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var out []claims.PrivateClaim
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid private claim '%s': expected name=key", pair)
		}
		key, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid private claim key for '%s': %w", name, err)
		}
		out = append(out, claims.PrivateClaim{Name: strings.TrimSpace(name), Key: key})
	}
	return out, nil
}

// Registry returns the claim registry built by Validate.
func (c *Config) Registry() *claims.Registry {
	return c.registry
}

// Algorithm returns the configured algorithm, or zero to use the key's.
func (c *Config) Algorithm() cose.Algorithm {
	return c.algorithm
}

// EncoderOptions translates the token settings into encoder options.
func (c *Config) EncoderOptions() []cwt.Option {
	var opts []cwt.Option
	if c.algorithm != 0 {
		opts = append(opts, cwt.WithAlgorithm(c.algorithm))
	}
	if c.Issuer != "" {
		opts = append(opts, cwt.WithIssuer(c.Issuer))
	}
	if c.Token == nil {
		return opts
	}
	if c.Token.ExpiresIn > 0 {
		opts = append(opts, cwt.WithExpiresIn(c.Token.ExpiresIn))
	}
	if c.Token.SetIssuedAt {
		opts = append(opts, cwt.WithIssuedAt())
	}
	if c.Token.SetNotBefore {
		opts = append(opts, cwt.WithNotBefore())
	}
	if c.Token.GenerateCTI {
		opts = append(opts, cwt.WithGeneratedCTI())
	}
	if c.Token.IncludeKeyID {
		opts = append(opts, cwt.WithKeyID())
	}
	if c.Token.TagCWT {
		opts = append(opts, cwt.WithCWTTag())
	}
	return opts
}

// NewEncoder builds an encoder from the validated configuration.
func (c *Config) NewEncoder(extra ...cwt.Option) *cwt.Encoder {
	return cwt.NewEncoder(c.registry, append(c.EncoderOptions(), extra...)...)
}
