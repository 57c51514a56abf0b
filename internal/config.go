package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const (
	PaymentModeTest = "test"
	PaymentModeLive = "live"

	StrategyAuthorization = "authorization"
	StrategyCapture       = "capture"
	StrategyDeposit       = "deposit"

	FallbackCurrency = "USD"

	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
	StorageDriverDynamoDB = "dynamodb"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Reconciler    ReconcilerConfig    `mapstructure:"reconciler"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// StorageConfig selects the PaymentStore backend.
type StorageConfig struct {
	Driver         string `mapstructure:"driver"`
	SQLitePath     string `mapstructure:"sqlite_path"`
	DynamoTable    string `mapstructure:"dynamo_table"`
	DynamoRegion   string `mapstructure:"dynamo_region"`
	DynamoEndpoint string `mapstructure:"dynamo_endpoint"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type SecurityConfig struct {
	AuthEnabled  bool   `mapstructure:"auth_enabled"`
	JWTPublicKey string `mapstructure:"jwt_public_key"`
	JWTIssuer    string `mapstructure:"jwt_issuer"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReconcilerConfig drives the background refresh sweep. Schedule is an
// optional cron expression with a seconds field; when set it replaces Interval.
type ReconcilerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Schedule   string        `mapstructure:"schedule"`
	MaxWorkers int           `mapstructure:"max_workers"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// CronParser accepts six-field expressions and descriptors such as "@every 30s".
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (c *ReconcilerConfig) Validate() error {
	if c.MaxWorkers < 0 || c.BatchSize < 0 {
		return errors.New("max_workers and batch_size cannot be negative")
	}
	if c.Schedule != "" {
		if _, err := CronParser.Parse(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

// PaymentConfig is the immutable snapshot handed to the payment engine. Call
// Normalize once at the boundary and pass the returned copy around by value.
type PaymentConfig struct {
	Enabled               bool            `mapstructure:"enabled"`
	Mode                  string          `mapstructure:"mode"`
	Strategy              string          `mapstructure:"strategy"`
	Currency              string          `mapstructure:"currency"`
	DefaultCurrency       string          `mapstructure:"default_currency"`
	DepositPerPerson      decimal.Decimal `mapstructure:"deposit_per_person"`
	SecretKey             string          `mapstructure:"secret_key"`
	PublishableKey        string          `mapstructure:"publishable_key"`
	APIBaseURL            string          `mapstructure:"api_base_url"`
	APIVersion            string          `mapstructure:"api_version"`
	Timeout               time.Duration   `mapstructure:"timeout"`
	SiteURL               string          `mapstructure:"site_url"`
	ZeroDecimalCurrencies []string        `mapstructure:"zero_decimal_currencies"`
}

// ----------------- DECODING -----------------

// DecodeHook is the mapstructure hook chain used when unmarshalling Config.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHook,
	)
}

func decimalHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(decimal.Decimal{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}
	return data, nil
}

// ----------------- NORMALIZATION -----------------

// Normalize fills defaults and canonicalizes the payment snapshot.
func (c PaymentConfig) Normalize() PaymentConfig {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode != PaymentModeLive {
		c.Mode = PaymentModeTest
	}

	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	switch c.Strategy {
	case StrategyAuthorization, StrategyCapture, StrategyDeposit:
	default:
		c.Strategy = StrategyAuthorization
	}

	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if !IsCurrencyCode(c.DefaultCurrency) {
		c.DefaultCurrency = FallbackCurrency
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if !IsCurrencyCode(c.Currency) {
		c.Currency = c.DefaultCurrency
	}

	if c.DepositPerPerson.IsNegative() {
		c.DepositPerPerson = decimal.Zero
	}
	c.DepositPerPerson = c.DepositPerPerson.Round(2)

	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://api.stripe.com/v1"
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}

	zero := make([]string, 0, len(c.ZeroDecimalCurrencies))
	for _, code := range c.ZeroDecimalCurrencies {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			zero = append(zero, code)
		}
	}
	c.ZeroDecimalCurrencies = zero

	return c
}

// IsCurrencyCode reports whether code is a 3-letter uppercase currency code.
func IsCurrencyCode(code string) bool {
	return currencyPattern.MatchString(code)
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Storage.Validate(c.Database); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Redis.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("redis config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.Reconciler.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconciler config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *StorageConfig) Validate(db DatabaseConfig) error {
	switch c.Driver {
	case "", StorageDriverPostgres:
		if db.Source == "" {
			return errors.New("database.source is required for the postgres driver")
		}
	case StorageDriverSQLite:
	case StorageDriverDynamoDB:
		if c.DynamoTable == "" {
			return errors.New("dynamo_table is required for the dynamodb driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	return nil
}

func (c *RedisConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return errors.New("addr is required when redis is enabled")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if !c.AuthEnabled {
		return nil
	}
	if _, err := c.GetPublicKey(); err != nil {
		return fmt.Errorf("invalid JWT public key: %w", err)
	}
	return nil
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}

func (c *PaymentConfig) Validate() error {
	var errs []string

	if c.Mode != "" && c.Mode != PaymentModeTest && c.Mode != PaymentModeLive {
		errs = append(errs, fmt.Sprintf("mode must be test or live, got %q", c.Mode))
	}
	switch c.Strategy {
	case "", StrategyAuthorization, StrategyCapture, StrategyDeposit:
	default:
		errs = append(errs, fmt.Sprintf("unknown strategy %q", c.Strategy))
	}
	if c.Currency != "" && !IsCurrencyCode(strings.ToUpper(c.Currency)) {
		errs = append(errs, fmt.Sprintf("currency %q is not a 3-letter code", c.Currency))
	}
	if c.DepositPerPerson.IsNegative() {
		errs = append(errs, "deposit_per_person cannot be negative")
	}
	if c.Enabled && c.SecretKey == "" {
		errs = append(errs, "secret_key is required when payments are enabled")
	}
	if c.APIBaseURL != "" {
		if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid api_base_url %q", c.APIBaseURL))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
