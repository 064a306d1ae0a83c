package params

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every ConfigurationError.
var ErrInvalidConfig = errors.New("invalid model config")

// ConfigurationError reports a ModelConfig that cannot produce a model.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }

type ModelConfig struct {
	// Advisory only; the core never enforces these two.
	BatchSize         int `mapstructure:"batch_size"`
	MaxSequenceLength int `mapstructure:"max_sequence_length"`

	// Core transformer parameters
	DModel         int     `mapstructure:"d_model"`         // model width
	NHead          int     `mapstructure:"nhead"`           // attention heads, dHead = DModel/NHead
	NumLayers      int     `mapstructure:"num_layers"`      // how many times attn --> mlp happens
	DimFeedforward int     `mapstructure:"dim_feedforward"` // MLP hidden
	Dropout        float64 `mapstructure:"dropout"`

	LayerNormEps float64 `mapstructure:"layer_norm_eps"`
	Seed         uint64  `mapstructure:"seed"`    // parameter init
	Workers      int     `mapstructure:"workers"` // rows forwarded concurrently, <=0 = GOMAXPROCS
	Debug        bool    `mapstructure:"debug"`
}

// DefaultConfig mirrors the reference encoder: 6 x (768 wide, 12 heads, 3072 FFN).
func DefaultConfig() ModelConfig {
	return ModelConfig{
		BatchSize:         2,
		MaxSequenceLength: 512,

		DModel:         768,
		NHead:          12,
		NumLayers:      6,
		DimFeedforward: 3072,
		Dropout:        0.1,

		LayerNormEps: 1e-5,
		Seed:         42,
		Workers:      0,
		Debug:        false,
	}
}

// HeadDim is DModel/NHead. Only meaningful on a validated config.
func (c ModelConfig) HeadDim() int {
	if c.NHead <= 0 {
		return 0
	}
	return c.DModel / c.NHead
}

// Validate returns a *ConfigurationError for the first broken invariant.
func (c ModelConfig) Validate() error {
	switch {
	case c.DModel <= 0:
		return &ConfigurationError{Field: "d_model", Reason: fmt.Sprintf("must be positive, got %d", c.DModel)}
	case c.NHead <= 0:
		return &ConfigurationError{Field: "nhead", Reason: fmt.Sprintf("must be positive, got %d", c.NHead)}
	case c.HeadDim()*c.NHead != c.DModel:
		return &ConfigurationError{
			Field:  "d_model",
			Reason: fmt.Sprintf("%d is not divisible by nhead %d", c.DModel, c.NHead),
		}
	case c.NumLayers <= 0:
		return &ConfigurationError{Field: "num_layers", Reason: fmt.Sprintf("must be positive, got %d", c.NumLayers)}
	case c.DimFeedforward <= 0:
		return &ConfigurationError{Field: "dim_feedforward", Reason: fmt.Sprintf("must be positive, got %d", c.DimFeedforward)}
	case c.Dropout < 0 || c.Dropout >= 1:
		return &ConfigurationError{Field: "dropout", Reason: fmt.Sprintf("must be in [0, 1), got %g", c.Dropout)}
	case c.LayerNormEps <= 0:
		return &ConfigurationError{Field: "layer_norm_eps", Reason: fmt.Sprintf("must be positive, got %g", c.LayerNormEps)}
	}
	return nil
}
