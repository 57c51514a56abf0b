package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/pkg/logger"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "reservation-payments",
	Short: "Reservation Payments",
	Long:  `Payment lifecycle engine for restaurant reservations: intents, capture, void and refund against a card gateway.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads <dir>/.env (optional), then <dir>/config.yml, with ENV_*
// variables overriding file values (payment.secret_key -> ENV_PAYMENT_SECRET_KEY).
func loadConfig(dir string) (*internal.Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(internal.DecodeHook())); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can bind it even when the
// config file omits it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("http_server.port", 8080)
	v.SetDefault("http_server.read_header_timeout", "5s")
	v.SetDefault("http_server.read_timeout", "15s")
	v.SetDefault("http_server.write_timeout", "30s")
	v.SetDefault("http_server.idle_timeout", "60s")
	v.SetDefault("http_server.base_url", "")

	v.SetDefault("database.source", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	v.SetDefault("storage.driver", internal.StorageDriverPostgres)
	v.SetDefault("storage.sqlite_path", "reservation-payments.db")
	v.SetDefault("storage.dynamo_table", "payments")
	v.SetDefault("storage.dynamo_region", "us-east-1")
	v.SetDefault("storage.dynamo_endpoint", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "30s")

	v.SetDefault("security.auth_enabled", false)
	v.SetDefault("security.jwt_public_key", "")
	v.SetDefault("security.jwt_issuer", "")

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")

	v.SetDefault("payment.enabled", false)
	v.SetDefault("payment.mode", internal.PaymentModeTest)
	v.SetDefault("payment.strategy", internal.StrategyAuthorization)
	v.SetDefault("payment.currency", "")
	v.SetDefault("payment.default_currency", internal.FallbackCurrency)
	v.SetDefault("payment.deposit_per_person", "0")
	v.SetDefault("payment.secret_key", "")
	v.SetDefault("payment.publishable_key", "")
	v.SetDefault("payment.api_base_url", "https://api.stripe.com/v1")
	v.SetDefault("payment.api_version", "")
	v.SetDefault("payment.timeout", "20s")
	v.SetDefault("payment.site_url", "")
	v.SetDefault("payment.zero_decimal_currencies", "")

	v.SetDefault("reconciler.interval", "1m")
	v.SetDefault("reconciler.schedule", "")
	v.SetDefault("reconciler.max_workers", 4)
	v.SetDefault("reconciler.batch_size", 100)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory holding config.yml and .env")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(paymentCmd)
	rootCmd.AddCommand(reconcileCmd)
}
