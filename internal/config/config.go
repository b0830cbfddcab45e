package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/menta2k/watermarker/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Watermark WatermarkConfig `json:"watermark"`
	Output    OutputConfig    `json:"output"`
	Batch     BatchConfig     `json:"batch"`
	Vision    VisionConfig    `json:"vision"`
}

// WatermarkConfig holds the per-image watermarking parameters
type WatermarkConfig struct {
	Mode        string  `json:"mode"`
	Position    string  `json:"position"`
	Opacity     float64 `json:"opacity"`
	Proportion  float64 `json:"proportion"`
	RescaleMode string  `json:"rescale_mode"`
	Margin      int     `json:"margin"`
	TilePadding int     `json:"tile_padding"`
	TileStyle   string  `json:"tile_style"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	OutputDir string `json:"output_dir"`
	Prefix    string `json:"prefix"`
	Suffix    string `json:"suffix"`
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	Lossless  bool   `json:"lossless"`
}

// BatchConfig holds configuration for directory processing
type BatchConfig struct {
	Workers   int  `json:"workers"`
	Recursive bool `json:"recursive"`
}

// VisionConfig holds the AUTO-placement backend settings
type VisionConfig struct {
	Backend     string `json:"backend"`
	URL         string `json:"url"`
	Model       string `json:"model"`
	SendFormat  string `json:"send_format"`
	SendMaxDim  int    `json:"send_max_dim"`
	SendQuality int    `json:"send_quality"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Watermark: WatermarkConfig{
			Mode:        string(types.ModeSingle),
			Position:    string(types.AnchorLowerRight),
			Opacity:     0.5,
			Proportion:  0.1,
			RescaleMode: string(types.RescaleLinear),
			Margin:      0,
			TilePadding: 50,
			TileStyle:   string(types.TileGrid),
		},
		Output: OutputConfig{
			OutputDir: "output",
			Prefix:    "",
			Suffix:    "",
			Format:    "",
			Quality:   95,
			Lossless:  false,
		},
		Batch: BatchConfig{
			Workers:   1,
			Recursive: false,
		},
		Vision: VisionConfig{
			Backend:     "local",
			URL:         "",
			Model:       "qwen2.5vl:7b",
			SendFormat:  "jpg",
			SendMaxDim:  1536,
			SendQuality: 85,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the batch-wide parameters before any file is touched.
// Violations surface the structured error kinds from pkg/types.
func (c *Config) Validate() error {
	if _, err := types.ParseMode(c.Watermark.Mode); err != nil {
		return err
	}
	if _, err := types.ParseRescaleMode(c.Watermark.RescaleMode); err != nil {
		return err
	}
	if _, err := types.ParseTileStyle(c.Watermark.TileStyle); err != nil {
		return err
	}
	if _, err := types.ParsePosition(c.Watermark.Position); err != nil {
		return err
	}

	if c.Watermark.Opacity < 0 || c.Watermark.Opacity > 1 {
		return fmt.Errorf("%w: %v", types.ErrInvalidOpacity, c.Watermark.Opacity)
	}
	if c.Watermark.Proportion <= 0 || c.Watermark.Proportion > 1 {
		return fmt.Errorf("%w: %v", types.ErrInvalidProportion, c.Watermark.Proportion)
	}
	if c.Watermark.Margin < 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidMargin, c.Watermark.Margin)
	}
	if c.Watermark.TilePadding < 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidPadding, c.Watermark.TilePadding)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive")
	}

	switch c.Vision.Backend {
	case "local", "ollama", "llamacpp":
	default:
		return fmt.Errorf("vision.backend must be one of local, ollama, llamacpp")
	}

	return nil
}

// GetConfigPath returns the configuration file path, honoring the
// WATERMARKER_CONFIG environment variable when set.
func GetConfigPath() string {
	if v := os.Getenv("WATERMARKER_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "watermarker", "config.json")
}
