package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"ledgerlens/internal/domain"
)

// Config holds all engine configuration.
type Config struct {
	Log       LogConfig
	Normalize NormalizeConfig
	Anomaly   AnomalyConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NormalizeConfig holds field normalization settings.
type NormalizeConfig struct {
	DefaultCurrency  string `mapstructure:"default_currency"`
	VendorCacheSize  int    `mapstructure:"vendor_cache_size"`
	VendorSimilarity int    `mapstructure:"vendor_similarity"`
}

// AnomalyConfig holds duplicate detection, outlier detection, and rule settings.
type AnomalyConfig struct {
	DuplicateVendorSimilarity  int     `mapstructure:"duplicate_vendor_similarity"`
	DuplicateAmountTolerance   float64 `mapstructure:"duplicate_amount_tolerance"`
	DuplicateDateToleranceDays int     `mapstructure:"duplicate_date_tolerance_days"`
	DuplicateTaxTolerance      float64 `mapstructure:"duplicate_tax_tolerance"`
	DuplicateBufferSize        int     `mapstructure:"duplicate_buffer_size"`

	VendorHistorySize int     `mapstructure:"vendor_history_size"`
	GlobalHistorySize int     `mapstructure:"global_history_size"`
	AmountSigma       float64 `mapstructure:"amount_sigma"`

	EnableML     bool `mapstructure:"enable_ml"`
	MLMinSamples int  `mapstructure:"ml_min_samples"`

	TaxRatioUpper float64  `mapstructure:"tax_ratio_upper"`
	TaxRatioLower float64  `mapstructure:"tax_ratio_lower"`
	MealCeiling   float64  `mapstructure:"meal_ceiling"`
	MealKeywords  []string `mapstructure:"meal_keywords"`
}

// Load reads configuration from environment variables with the LEDGERLENS_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDGERLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// Normalization defaults
	v.SetDefault("normalize.default_currency", "CNY")
	v.SetDefault("normalize.vendor_cache_size", 2000)
	v.SetDefault("normalize.vendor_similarity", 90)

	// Duplicate detection defaults
	v.SetDefault("anomaly.duplicate_vendor_similarity", 88)
	v.SetDefault("anomaly.duplicate_amount_tolerance", 0.5)
	v.SetDefault("anomaly.duplicate_date_tolerance_days", 3)
	v.SetDefault("anomaly.duplicate_tax_tolerance", 0.5)
	v.SetDefault("anomaly.duplicate_buffer_size", 2000)

	// Outlier detection defaults
	v.SetDefault("anomaly.vendor_history_size", 100)
	v.SetDefault("anomaly.global_history_size", 500)
	v.SetDefault("anomaly.amount_sigma", 2.5)
	v.SetDefault("anomaly.enable_ml", false)
	v.SetDefault("anomaly.ml_min_samples", 25)

	// Rule defaults
	v.SetDefault("anomaly.tax_ratio_upper", 0.17)
	v.SetDefault("anomaly.tax_ratio_lower", 0.00)
	v.SetDefault("anomaly.meal_ceiling", 2000)
	v.SetDefault("anomaly.meal_keywords", "meal,餐")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if len(cfg.Anomaly.MealKeywords) == 1 {
		// Env vars carry lists as a comma-separated string.
		cfg.Anomaly.MealKeywords = splitList(cfg.Anomaly.MealKeywords[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without consulting the environment.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "debug", Format: "console"},
		Normalize: NormalizeConfig{
			DefaultCurrency:  "CNY",
			VendorCacheSize:  2000,
			VendorSimilarity: 90,
		},
		Anomaly: AnomalyConfig{
			DuplicateVendorSimilarity:  88,
			DuplicateAmountTolerance:   0.5,
			DuplicateDateToleranceDays: 3,
			DuplicateTaxTolerance:      0.5,
			DuplicateBufferSize:        2000,
			VendorHistorySize:          100,
			GlobalHistorySize:          500,
			AmountSigma:                2.5,
			EnableML:                   false,
			MLMinSamples:               25,
			TaxRatioUpper:              0.17,
			TaxRatioLower:              0.00,
			MealCeiling:                2000,
			MealKeywords:               []string{"meal", "餐"},
		},
	}
}

// Validate checks capacities and thresholds. Construction is the only place
// where bad configuration surfaces as an error; analyze never fails.
func (c *Config) Validate() error {
	if c.Normalize.VendorCacheSize <= 0 {
		return fmt.Errorf("%w: vendor cache size must be positive, got %d", domain.ErrInvalidConfig, c.Normalize.VendorCacheSize)
	}
	if c.Normalize.VendorSimilarity < 0 || c.Normalize.VendorSimilarity > 100 {
		return fmt.Errorf("%w: vendor similarity must be within [0, 100], got %d", domain.ErrInvalidConfig, c.Normalize.VendorSimilarity)
	}
	a := &c.Anomaly
	if a.DuplicateVendorSimilarity < 0 || a.DuplicateVendorSimilarity > 100 {
		return fmt.Errorf("%w: duplicate vendor similarity must be within [0, 100], got %d", domain.ErrInvalidConfig, a.DuplicateVendorSimilarity)
	}
	if a.DuplicateAmountTolerance < 0 {
		return fmt.Errorf("%w: duplicate amount tolerance must be non-negative, got %g", domain.ErrInvalidConfig, a.DuplicateAmountTolerance)
	}
	if a.DuplicateDateToleranceDays < 0 {
		return fmt.Errorf("%w: duplicate date tolerance must be non-negative, got %d", domain.ErrInvalidConfig, a.DuplicateDateToleranceDays)
	}
	if a.DuplicateTaxTolerance < 0 {
		return fmt.Errorf("%w: duplicate tax tolerance must be non-negative, got %g", domain.ErrInvalidConfig, a.DuplicateTaxTolerance)
	}
	if a.DuplicateBufferSize <= 0 {
		return fmt.Errorf("%w: duplicate buffer size must be positive, got %d", domain.ErrInvalidConfig, a.DuplicateBufferSize)
	}
	if a.VendorHistorySize <= 0 {
		return fmt.Errorf("%w: vendor history size must be positive, got %d", domain.ErrInvalidConfig, a.VendorHistorySize)
	}
	if a.GlobalHistorySize <= 0 {
		return fmt.Errorf("%w: global history size must be positive, got %d", domain.ErrInvalidConfig, a.GlobalHistorySize)
	}
	if a.AmountSigma <= 0 {
		return fmt.Errorf("%w: amount sigma must be positive, got %g", domain.ErrInvalidConfig, a.AmountSigma)
	}
	if a.MLMinSamples <= 0 {
		return fmt.Errorf("%w: ml min samples must be positive, got %d", domain.ErrInvalidConfig, a.MLMinSamples)
	}
	if a.TaxRatioUpper < a.TaxRatioLower {
		return fmt.Errorf("%w: tax ratio upper bound %g is below lower bound %g", domain.ErrInvalidConfig, a.TaxRatioUpper, a.TaxRatioLower)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
