package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Model    ModelConfig   `mapstructure:"model"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Scan     ScanConfig    `mapstructure:"scan"`
	LogLevel string        `mapstructure:"log_level"`
}

type ModelConfig struct {
	DModel int `mapstructure:"d_model"`
	// EmbeddingDim is the width of the incoming embeddings. Zero means
	// d_model; any other value must equal it.
	EmbeddingDim int     `mapstructure:"embedding_dim"`
	DConv        int     `mapstructure:"d_conv"`
	RMin         float64 `mapstructure:"r_min"`
	RMax         float64 `mapstructure:"r_max"`
	Dropout      float64 `mapstructure:"dropout"`
	Seed         uint64  `mapstructure:"seed"`
}

type RuntimeConfig struct {
	Workers int `mapstructure:"workers"`
}

type ScanConfig struct {
	BlockSize int `mapstructure:"block_size"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Model: ModelConfig{
			DModel:  64,
			DConv:   3,
			RMin:    0.9,
			RMax:    0.999,
			Dropout: 0.2,
			Seed:    42,
		},
		Runtime: RuntimeConfig{
			Workers: 0,
		},
		Scan: ScanConfig{
			BlockSize: 64,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each dashed flag name to its dotted config key.
var flagKeys = map[string]string{
	"model-d-model":       "model.d_model",
	"model-embedding-dim": "model.embedding_dim",
	"model-d-conv":        "model.d_conv",
	"model-r-min":         "model.r_min",
	"model-r-max":         "model.r_max",
	"model-dropout":       "model.dropout",
	"model-seed":          "model.seed",
	"workers":             "runtime.workers",
	"scan-block-size":     "scan.block_size",
	"log-level":           "log_level",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.Int("model-d-model", defaults.Model.DModel, "Model width d_model")
	fs.Int("model-embedding-dim", defaults.Model.EmbeddingDim, "Embedding width (0 = d_model)")
	fs.Int("model-d-conv", defaults.Model.DConv, "Global summarizer convolution width")
	fs.Float64("model-r-min", defaults.Model.RMin, "Lower bound of the recurrence decay magnitude")
	fs.Float64("model-r-max", defaults.Model.RMax, "Upper bound of the recurrence decay magnitude")
	fs.Float64("model-dropout", defaults.Model.Dropout, "Dropout probability in training mode")
	fs.Uint64("model-seed", defaults.Model.Seed, "Seed for parameter initialization and dropout")
	fs.Int("workers", defaults.Runtime.Workers, "Worker goroutines for kernels and scans (0 = GOMAXPROCS)")
	fs.Int("scan-block-size", defaults.Scan.BlockSize, "Block size of the two-level associative scan")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("SUMMER")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("summer")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// bindFlags binds every registered config flag to its dotted key, so an
// unchanged flag still lets env and config file values through.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("model.d_model", c.Model.DModel)
	v.SetDefault("model.embedding_dim", c.Model.EmbeddingDim)
	v.SetDefault("model.d_conv", c.Model.DConv)
	v.SetDefault("model.r_min", c.Model.RMin)
	v.SetDefault("model.r_max", c.Model.RMax)
	v.SetDefault("model.dropout", c.Model.Dropout)
	v.SetDefault("model.seed", c.Model.Seed)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("scan.block_size", c.Scan.BlockSize)
	v.SetDefault("log_level", c.LogLevel)
}
