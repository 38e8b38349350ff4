package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vitwit/scanpay"
	"github.com/vitwit/scanpay/logger"
	"github.com/vitwit/scanpay/metrics"
	"github.com/vitwit/scanpay/types"
	"github.com/vitwit/scanpay/utils"
)

var (
	configPath string
	configJSON string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:          "scanpay",
	Short:        "Scan-to-pay for EVM smart accounts",
	Long:         `Pay merchants from QR payment payloads with a batched approve + pay operation.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding config.yml")
	rootCmd.PersistentFlags().StringVar(&configJSON, "config-json", "", "JSON config file; replaces config.yml and SCANPAY_* variables")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")

	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(qrCmd)
	rootCmd.AddCommand(versionCmd)
}

// configDefaults registers every key so SCANPAY_* environment variables
// reach Unmarshal even without a config file.
var configDefaults = map[string]any{
	"network":                      string(types.NetworkBaseSepolia),
	"provider":                     string(types.ProviderEmbedded),
	"rpc_url":                      "",
	"bundler_url":                  "",
	"paymaster_url":                "",
	"entry_point":                  "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
	"account_address":              "",
	"signer_key":                   "",
	"fallback_gas_limit":           0,
	"default_timeout":              30 * time.Second,
	"log_level":                    "info",
	"log_format":                   "json",
	"enable_metrics":               false,
	"metrics_addr":                 ":9090",
	"payment.token_address":        "",
	"payment.token_decimals":       6,
	"payment.payment_contract":     "",
	"payment.payment_id":           "0x0000000000000000000000000000000000000000000000000000000000000001",
	"payment.explorer_url":         "",
	"payment.poll_interval":        2 * time.Second,
	"payment.confirmation_timeout": 2 * time.Minute,
}

func loadConfig(path string) (*types.ScanPayConfig, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("SCANPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, d := range configDefaults {
		v.SetDefault(k, d)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg types.ScanPayConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// loadJSONConfig reads a complete config from a JSON file, as produced by
// other tooling, and validates it.
func loadJSONConfig(path string) (*types.ScanPayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	return utils.ParseScanPayConfig(data)
}

func resolveConfig() (*types.ScanPayConfig, error) {
	if configJSON != "" {
		return loadJSONConfig(configJSON)
	}
	return loadConfig(configPath)
}

// newScanPay loads config and builds a ScanPay with the zap logger and,
// when enabled, Prometheus metrics served on MetricsAddr.
func newScanPay() (*scanpay.ScanPay, logger.Logger, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	opts := []scanpay.Option{scanpay.WithLogger(log)}
	if cfg.EnableMetrics {
		rec, err := metrics.NewPrometheusRecorder(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		opts = append(opts, scanpay.WithMetrics(rec))
		serveMetrics(cfg.MetricsAddr, log)
	}

	sp, err := scanpay.New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return sp, log, nil
}

func metricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func serveMetrics(addr string, log logger.Logger) {
	server := &http.Server{
		Addr:              addr,
		Handler:           metricsRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("serving metrics", map[string]any{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", map[string]any{"error": err})
		}
	}()
}
