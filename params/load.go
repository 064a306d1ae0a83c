package params

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HST_D_MODEL=512.
const EnvPrefix = "HST"

// LoadConfig reads a ModelConfig from configPath, or from config.yaml in
// the usual places when configPath is empty. A missing file is not an
// error: defaults and environment overrides still apply. The result is
// validated before it is returned.
func LoadConfig(configPath string) (ModelConfig, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	def := DefaultConfig()
	v.SetDefault("batch_size", def.BatchSize)
	v.SetDefault("max_sequence_length", def.MaxSequenceLength)
	v.SetDefault("d_model", def.DModel)
	v.SetDefault("nhead", def.NHead)
	v.SetDefault("num_layers", def.NumLayers)
	v.SetDefault("dim_feedforward", def.DimFeedforward)
	v.SetDefault("dropout", def.Dropout)
	v.SetDefault("layer_norm_eps", def.LayerNormEps)
	v.SetDefault("seed", def.Seed)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("debug", def.Debug)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return ModelConfig{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg ModelConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ModelConfig{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ModelConfig{}, err
	}
	return cfg, nil
}
