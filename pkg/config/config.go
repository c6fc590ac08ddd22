package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/rekognition"
	ConfigFileName    = "rekognition.yml"
)

// Staging modes.
const (
	StagingS3     = "s3"
	StagingInline = "inline"
)

// Config holds all server configuration settings
type Config struct {
	// DatabaseURL is the postgres:// or sqlite:// URL of the main database
	DatabaseURL string `yaml:"database_url" json:"database_url"`

	// AuditDatabaseURL is an optional Postgres URL audit events are persisted to
	AuditDatabaseURL string `yaml:"audit_database_url" json:"audit_database_url"`

	// AWSRegion is the region of the S3 bucket and Rekognition endpoint
	AWSRegion string `yaml:"aws_region" json:"aws_region"`

	// S3Bucket is the bucket images are staged in
	S3Bucket string `yaml:"s3_bucket" json:"s3_bucket"`

	// S3Prefix is prepended to every staged object key
	S3Prefix string `yaml:"s3_prefix" json:"s3_prefix"`

	// Staging is "s3" or "inline"
	Staging string `yaml:"staging" json:"staging"`

	// MinConfidence is the minimum label confidence requested from Rekognition
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// MaxLabels caps the labels returned per image; 0 uses the provider default
	MaxLabels int `yaml:"max_labels" json:"max_labels"`

	// DetectionTimeout bounds each detection call, in seconds
	DetectionTimeout int `yaml:"detection_timeout" json:"detection_timeout"`

	// AnalysisConcurrency is how many files of one upload are analyzed at once
	AnalysisConcurrency int `yaml:"analysis_concurrency" json:"analysis_concurrency"`

	// TokenSecret signs access tokens
	TokenSecret string `yaml:"token_secret" json:"-"`

	// TokenTTL is the access token lifetime in seconds
	TokenTTL int `yaml:"token_ttl" json:"token_ttl"`

	// BcryptCost is the cost of new password hashes
	BcryptCost int `yaml:"bcrypt_cost" json:"bcrypt_cost"`

	// MaxUploadBytes caps the size of an upload request body
	MaxUploadBytes int64 `yaml:"max_upload_bytes" json:"max_upload_bytes"`

	// CORSOrigins lists the origins allowed to call the API
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// TrustedProxies is a list of CIDR ranges whose X-Forwarded-For is honored
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies"`

	// StaticDir is served at / when set
	StaticDir string `yaml:"static_dir" json:"static_dir"`

	// ResultCacheTTL is how long stored results stay in memory, in seconds
	ResultCacheTTL int `yaml:"result_cache_ttl" json:"result_cache_ttl"`

	// LogLevel is a logrus level name
	LogLevel string `yaml:"log_level" json:"log_level"`

	// sources tracks where each value came from
	sources map[string]string

	// configFilePath is the path to the config file
	configFilePath string
}

// Attribute represents a configuration attribute with its value and source
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Global singleton config
var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	configMu.RLock()
	if globalConfig != nil {
		configMu.RUnlock()
		return globalConfig
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			logrus.WithError(err).Warn("failed to load configuration, using defaults")
			globalConfig = newDefault()
		} else {
			globalConfig = cfg
		}
	}
	return globalConfig
}

// Reload reloads the configuration from file and environment
func Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
	return nil
}

// newDefault returns a config with default values
func newDefault() *Config {
	return &Config{
		AWSRegion:           "us-east-2",
		S3Bucket:            "objectrekognitionimages",
		S3Prefix:            "uploads/",
		Staging:             StagingS3,
		MinConfidence:       80,
		MaxLabels:           0,
		DetectionTimeout:    30,
		AnalysisConcurrency: 1,
		TokenTTL:            86400,
		BcryptCost:          bcrypt.DefaultCost,
		MaxUploadBytes:      32 << 20,
		CORSOrigins:         []string{"*"},
		TrustedProxies:      []string{},
		ResultCacheTTL:      300,
		LogLevel:            "info",
		sources:             make(map[string]string),
	}
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	config := newDefault()

	for _, name := range attributeNames() {
		config.sources[name] = "default"
	}

	configPath := os.Getenv("REKOG_CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	config.configFilePath = filepath.Join(configPath, ConfigFileName)

	if data, err := os.ReadFile(config.configFilePath); err == nil {
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", config.configFilePath, err)
		}
		config.applyFileConfig(&file)
	}

	if err := config.applyEnvConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func attributeNames() []string {
	return []string{
		"database_url", "audit_database_url", "aws_region", "s3_bucket",
		"s3_prefix", "staging", "min_confidence", "max_labels",
		"detection_timeout", "analysis_concurrency", "token_secret",
		"token_ttl", "bcrypt_cost", "max_upload_bytes", "cors_origins",
		"trusted_proxies", "static_dir", "result_cache_ttl", "log_level",
	}
}

// fileConfig mirrors Config with pointer fields so a key present in the
// file with a zero value (result_cache_ttl: 0) is told apart from a missing key.
type fileConfig struct {
	DatabaseURL         *string   `yaml:"database_url"`
	AuditDatabaseURL    *string   `yaml:"audit_database_url"`
	AWSRegion           *string   `yaml:"aws_region"`
	S3Bucket            *string   `yaml:"s3_bucket"`
	S3Prefix            *string   `yaml:"s3_prefix"`
	Staging             *string   `yaml:"staging"`
	MinConfidence       *float64  `yaml:"min_confidence"`
	MaxLabels           *int      `yaml:"max_labels"`
	DetectionTimeout    *int      `yaml:"detection_timeout"`
	AnalysisConcurrency *int      `yaml:"analysis_concurrency"`
	TokenSecret         *string   `yaml:"token_secret"`
	TokenTTL            *int      `yaml:"token_ttl"`
	BcryptCost          *int      `yaml:"bcrypt_cost"`
	MaxUploadBytes      *int64    `yaml:"max_upload_bytes"`
	CORSOrigins         *[]string `yaml:"cors_origins"`
	TrustedProxies      *[]string `yaml:"trusted_proxies"`
	StaticDir           *string   `yaml:"static_dir"`
	ResultCacheTTL      *int      `yaml:"result_cache_ttl"`
	LogLevel            *string   `yaml:"log_level"`
}

func (c *Config) applyFileConfig(file *fileConfig) {
	setString := func(name string, dst *string, val *string) {
		if val != nil {
			*dst = *val
			c.sources[name] = "file"
		}
	}
	setInt := func(name string, dst *int, val *int) {
		if val != nil {
			*dst = *val
			c.sources[name] = "file"
		}
	}
	setList := func(name string, dst *[]string, val *[]string) {
		if val != nil {
			*dst = *val
			c.sources[name] = "file"
		}
	}

	setString("database_url", &c.DatabaseURL, file.DatabaseURL)
	setString("audit_database_url", &c.AuditDatabaseURL, file.AuditDatabaseURL)
	setString("aws_region", &c.AWSRegion, file.AWSRegion)
	setString("s3_bucket", &c.S3Bucket, file.S3Bucket)
	setString("s3_prefix", &c.S3Prefix, file.S3Prefix)
	setString("staging", &c.Staging, file.Staging)
	setString("token_secret", &c.TokenSecret, file.TokenSecret)
	setString("static_dir", &c.StaticDir, file.StaticDir)
	setString("log_level", &c.LogLevel, file.LogLevel)

	if file.MinConfidence != nil {
		c.MinConfidence = *file.MinConfidence
		c.sources["min_confidence"] = "file"
	}
	setInt("max_labels", &c.MaxLabels, file.MaxLabels)
	setInt("detection_timeout", &c.DetectionTimeout, file.DetectionTimeout)
	setInt("analysis_concurrency", &c.AnalysisConcurrency, file.AnalysisConcurrency)
	setInt("token_ttl", &c.TokenTTL, file.TokenTTL)
	setInt("bcrypt_cost", &c.BcryptCost, file.BcryptCost)
	setInt("result_cache_ttl", &c.ResultCacheTTL, file.ResultCacheTTL)
	if file.MaxUploadBytes != nil {
		c.MaxUploadBytes = *file.MaxUploadBytes
		c.sources["max_upload_bytes"] = "file"
	}

	setList("cors_origins", &c.CORSOrigins, file.CORSOrigins)
	setList("trusted_proxies", &c.TrustedProxies, file.TrustedProxies)
}

func (c *Config) applyEnvConfig() error {
	var result *multierror.Error

	setString := func(env, name string, dst *string) {
		if val := os.Getenv(env); val != "" {
			*dst = val
			c.sources[name] = "environment"
		}
	}
	setInt := func(env, name string, dst *int) {
		if val := os.Getenv(env); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("invalid %s value %q: %w", env, val, err))
				return
			}
			*dst = i
			c.sources[name] = "environment"
		}
	}

	setString("DATABASE_URL", "database_url", &c.DatabaseURL)
	setString("REKOG_AUDIT_DATABASE_URL", "audit_database_url", &c.AuditDatabaseURL)
	setString("AWS_REGION", "aws_region", &c.AWSRegion)
	setString("REKOG_S3_BUCKET", "s3_bucket", &c.S3Bucket)
	setString("REKOG_S3_PREFIX", "s3_prefix", &c.S3Prefix)
	setString("REKOG_STAGING", "staging", &c.Staging)
	setString("REKOG_TOKEN_SECRET", "token_secret", &c.TokenSecret)
	setString("REKOG_STATIC_DIR", "static_dir", &c.StaticDir)
	setString("REKOG_LOG_LEVEL", "log_level", &c.LogLevel)

	if val := os.Getenv("REKOG_MIN_CONFIDENCE"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid REKOG_MIN_CONFIDENCE value %q: %w", val, err))
		} else {
			c.MinConfidence = f
			c.sources["min_confidence"] = "environment"
		}
	}
	setInt("REKOG_MAX_LABELS", "max_labels", &c.MaxLabels)
	setInt("REKOG_DETECTION_TIMEOUT", "detection_timeout", &c.DetectionTimeout)
	setInt("REKOG_ANALYSIS_CONCURRENCY", "analysis_concurrency", &c.AnalysisConcurrency)
	setInt("REKOG_TOKEN_TTL", "token_ttl", &c.TokenTTL)
	setInt("REKOG_BCRYPT_COST", "bcrypt_cost", &c.BcryptCost)
	setInt("REKOG_RESULT_CACHE_TTL", "result_cache_ttl", &c.ResultCacheTTL)
	if val := os.Getenv("REKOG_MAX_UPLOAD_BYTES"); val != "" {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid REKOG_MAX_UPLOAD_BYTES value %q: %w", val, err))
		} else {
			c.MaxUploadBytes = i
			c.sources["max_upload_bytes"] = "environment"
		}
	}

	if val := os.Getenv("REKOG_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = splitAndTrim(val)
		c.sources["cors_origins"] = "environment"
	}
	if val := os.Getenv("REKOG_TRUSTED_PROXIES"); val != "" {
		c.TrustedProxies = splitAndTrim(val)
		c.sources["trusted_proxies"] = "environment"
	}

	return result.ErrorOrNil()
}

// ConfigFilePath returns the path to the config file
func (c *Config) ConfigFilePath() string {
	return c.configFilePath
}

// Source returns the source of a configuration attribute
func (c *Config) Source(name string) string {
	if c.sources == nil {
		return "default"
	}
	if s, ok := c.sources[name]; ok {
		return s
	}
	return "default"
}

// TokenLifetime returns the access token TTL as a duration
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenTTL) * time.Second
}

// DetectionTimeoutDuration returns the detection timeout as a duration
func (c *Config) DetectionTimeoutDuration() time.Duration {
	return time.Duration(c.DetectionTimeout) * time.Second
}

// ResultCacheDuration returns the result cache TTL as a duration
func (c *Config) ResultCacheDuration() time.Duration {
	return time.Duration(c.ResultCacheTTL) * time.Second
}

// InlineStaging reports whether images are sent to Rekognition inline.
func (c *Config) InlineStaging() bool {
	return c.Staging == StagingInline
}

// IsTrustedProxy checks if an IP is from a trusted proxy
func (c *Config) IsTrustedProxy(ip string) bool {
	if len(c.TrustedProxies) == 0 {
		return false
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, cidr := range c.TrustedProxies {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			// Try as plain IP
			if net.ParseIP(cidr) != nil && cidr == ip {
				return true
			}
			continue
		}
		if network.Contains(parsedIP) {
			return true
		}
	}
	return false
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Staging {
	case StagingS3:
		if c.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("s3_bucket is required when staging is %q", StagingS3))
		}
	case StagingInline:
	default:
		result = multierror.Append(result, fmt.Errorf("invalid staging value: %q (want %q or %q)", c.Staging, StagingS3, StagingInline))
	}
	if c.AWSRegion == "" {
		result = multierror.Append(result, fmt.Errorf("aws_region is required"))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		result = multierror.Append(result, fmt.Errorf("min_confidence must be between 0 and 100, got %v", c.MinConfidence))
	}
	if c.MaxLabels < 0 {
		result = multierror.Append(result, fmt.Errorf("max_labels must not be negative, got %d", c.MaxLabels))
	}
	if c.DetectionTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("detection_timeout must be positive, got %d", c.DetectionTimeout))
	}
	if c.AnalysisConcurrency < 1 {
		result = multierror.Append(result, fmt.Errorf("analysis_concurrency must be at least 1, got %d", c.AnalysisConcurrency))
	}
	if c.TokenTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("token_ttl must be positive, got %d", c.TokenTTL))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		result = multierror.Append(result, fmt.Errorf("bcrypt_cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}
	if c.MaxUploadBytes <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.ResultCacheTTL < 0 {
		result = multierror.Append(result, fmt.Errorf("result_cache_ttl must not be negative, got %d", c.ResultCacheTTL))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid log_level: %w", err))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			if net.ParseIP(cidr) == nil {
				result = multierror.Append(result, fmt.Errorf("invalid trusted_proxies value: %s", cidr))
			}
		}
	}

	return result.ErrorOrNil()
}

// ValidateServer validates the settings needed to serve the API.
func (c *Config) ValidateServer() error {
	var result *multierror.Error
	if err := c.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.DatabaseURL == "" {
		result = multierror.Append(result, fmt.Errorf("database_url is required"))
	}
	if len(c.TokenSecret) < 16 {
		result = multierror.Append(result, fmt.Errorf("token_secret must be at least 16 bytes"))
	}
	return result.ErrorOrNil()
}

// Attributes returns all configuration attributes with their values and sources
func (c *Config) Attributes() []Attribute {
	secret := ""
	if c.TokenSecret != "" {
		secret = "(set)"
	}
	return []Attribute{
		{Name: "database_url", Value: redactURL(c.DatabaseURL), Source: c.Source("database_url")},
		{Name: "audit_database_url", Value: redactURL(c.AuditDatabaseURL), Source: c.Source("audit_database_url")},
		{Name: "aws_region", Value: c.AWSRegion, Source: c.Source("aws_region")},
		{Name: "s3_bucket", Value: c.S3Bucket, Source: c.Source("s3_bucket")},
		{Name: "s3_prefix", Value: c.S3Prefix, Source: c.Source("s3_prefix")},
		{Name: "staging", Value: c.Staging, Source: c.Source("staging")},
		{Name: "min_confidence", Value: strconv.FormatFloat(c.MinConfidence, 'f', -1, 64), Source: c.Source("min_confidence")},
		{Name: "max_labels", Value: strconv.Itoa(c.MaxLabels), Source: c.Source("max_labels")},
		{Name: "detection_timeout", Value: strconv.Itoa(c.DetectionTimeout), Source: c.Source("detection_timeout")},
		{Name: "analysis_concurrency", Value: strconv.Itoa(c.AnalysisConcurrency), Source: c.Source("analysis_concurrency")},
		{Name: "token_secret", Value: secret, Source: c.Source("token_secret")},
		{Name: "token_ttl", Value: strconv.Itoa(c.TokenTTL), Source: c.Source("token_ttl")},
		{Name: "bcrypt_cost", Value: strconv.Itoa(c.BcryptCost), Source: c.Source("bcrypt_cost")},
		{Name: "max_upload_bytes", Value: strconv.FormatInt(c.MaxUploadBytes, 10), Source: c.Source("max_upload_bytes")},
		{Name: "cors_origins", Value: strings.Join(c.CORSOrigins, ","), Source: c.Source("cors_origins")},
		{Name: "trusted_proxies", Value: strings.Join(c.TrustedProxies, ","), Source: c.Source("trusted_proxies")},
		{Name: "static_dir", Value: c.StaticDir, Source: c.Source("static_dir")},
		{Name: "result_cache_ttl", Value: strconv.Itoa(c.ResultCacheTTL), Source: c.Source("result_cache_ttl")},
		{Name: "log_level", Value: c.LogLevel, Source: c.Source("log_level")},
	}
}

// FormatText returns a text representation of the configuration
func (c *Config) FormatText() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config file: %s\n\n", c.configFilePath))
	sb.WriteString(fmt.Sprintf("%-24s %-40s %s\n", "NAME", "VALUE", "SOURCE"))
	sb.WriteString(fmt.Sprintf("%-24s %-40s %s\n", "----", "-----", "------"))

	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		sb.WriteString(fmt.Sprintf("%-24s %-40s %s\n", attr.Name, value, attr.Source))
	}
	return sb.String()
}

// FormatJSON returns a JSON representation of the configuration
func (c *Config) FormatJSON() (string, error) {
	result := map[string]interface{}{
		"config_file": c.configFilePath,
		"attributes":  c.Attributes(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// redactURL hides the password of a database URL.
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	userinfo := raw[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		userinfo = userinfo[:colon] + ":xxxxx"
	}
	return raw[:scheme+3] + userinfo + raw[at:]
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
