package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/menta2k/frontlearn/internal/utils"
	"github.com/menta2k/frontlearn/pkg/types"
)

// Config holds the settings of one training run
type Config struct {
	Dataset  DatasetConfig  `json:"dataset"`
	Sampling SamplingConfig `json:"sampling"`
	Training TrainingConfig `json:"training"`
}

// DatasetConfig selects the source directory tree
type DatasetConfig struct {
	RootDir     string `json:"root_dir"`
	GlacierName string `json:"glacier_name"`
	Suffix      string `json:"suffix"`
	ImageExt    string `json:"image_ext"`
	MaskFrom    string `json:"mask_from"`
	MaskTo      string `json:"mask_to"`
}

// SamplingConfig holds the sliding-window extraction parameters
type SamplingConfig struct {
	HalfHeight int     `json:"half_height"`
	HalfWidth  int     `json:"half_width"`
	NWindows   int     `json:"n_windows"`
	Seed       *uint64 `json:"seed,omitempty"`
}

// TrainingConfig holds the classifier hyperparameters
type TrainingConfig struct {
	Epochs         int     `json:"epochs"`
	Batches        int     `json:"batches"`
	NRelu          int     `json:"n_relu"`
	ImbalanceRatio int     `json:"imbalance_ratio"`
	Retrain        bool    `json:"retrain"`
	LearningRate   float64 `json:"learning_rate"`
}

// Default returns a configuration with default values. The required
// hyperparameters are left zero and fail Validate until they are set.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			RootDir:  ".",
			ImageExt: ".png",
			MaskFrom: "Subset",
			MaskTo:   "Front",
		},
		Training: TrainingConfig{
			LearningRate: 0.001,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(fs afero.Fs, filename string) (*Config, error) {
	return LoadFromFileOver(fs, filename, nil)
}

// LoadFromFileOver loads a JSON file over a copy of base. Fields absent from
// the file keep the base value; a nil base means Default().
func LoadFromFileOver(fs afero.Fs, filename string, base *Config) (*Config, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, &types.ConfigurationError{Field: filename, Reason: "failed to read config file", Err: err}
	}

	config := base.Clone()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, &types.ConfigurationError{Field: filename, Reason: "failed to parse config file", Err: err}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Clone returns a deep copy of c, or Default() when c is nil
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	copied := *c
	if c.Sampling.Seed != nil {
		seed := *c.Sampling.Seed
		copied.Sampling.Seed = &seed
	}
	return &copied
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(fs afero.Fs, filename string) error {
	if err := utils.EnsureDir(fs, filepath.Dir(filename)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(fs, filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	invalid := func(field string, value any, reason string) error {
		return &types.ConfigurationError{Field: field, Value: fmt.Sprint(value), Reason: reason}
	}

	if c.Dataset.GlacierName == "" {
		return &types.ConfigurationError{Field: KeyGlacierName, Reason: "required"}
	}
	if c.Dataset.ImageExt == "" {
		return &types.ConfigurationError{Field: KeyImageExt, Reason: "must not be empty"}
	}
	if c.Sampling.HalfHeight < 0 {
		return invalid(KeyHalfHeight, c.Sampling.HalfHeight, "must be non-negative")
	}
	if c.Sampling.HalfWidth < 0 {
		return invalid(KeyHalfWidth, c.Sampling.HalfWidth, "must be non-negative")
	}
	if c.Sampling.NWindows < 1 {
		return invalid(KeyNWindows, c.Sampling.NWindows, "must be positive")
	}
	if c.Training.Epochs < 1 {
		return invalid(KeyEpochs, c.Training.Epochs, "must be positive")
	}
	if c.Training.Batches < 1 {
		return invalid(KeyBatches, c.Training.Batches, "must be positive")
	}
	if c.Training.NRelu < 1 {
		return invalid(KeyNRelu, c.Training.NRelu, "must be positive")
	}
	if c.Training.ImbalanceRatio < 0 {
		return invalid(KeyImbalanceRatio, c.Training.ImbalanceRatio, "must be non-negative")
	}
	if !(c.Training.LearningRate > 0) {
		return invalid(KeyLearningRate, c.Training.LearningRate, "must be positive")
	}

	return nil
}

// Window returns the extraction window size
func (c *Config) Window() types.WindowSize {
	return types.WindowSize{HalfHeight: c.Sampling.HalfHeight, HalfWidth: c.Sampling.HalfWidth}
}

// GlacierDir returns <root>/<GLACIER_NAME>.dir
func (c *Config) GlacierDir() string {
	return filepath.Join(c.Dataset.RootDir, c.Dataset.GlacierName+".dir")
}

// SplitDir returns the source directory of a split
func (c *Config) SplitDir(split types.Split) string {
	return filepath.Join(c.GlacierDir(), "data", string(split))
}

// CheckpointName returns the artifact name for this exact hyperparameter combination
func (c *Config) CheckpointName() string {
	return fmt.Sprintf("SW_frontlearn_weights_%dbtch_%depochs_%dHH_%dHW_%dnwindows_%drelu_%dimbalance%s.ckpt",
		c.Training.Batches, c.Training.Epochs, c.Sampling.HalfHeight, c.Sampling.HalfWidth,
		c.Sampling.NWindows, c.Training.NRelu, c.Training.ImbalanceRatio, c.Dataset.Suffix)
}

// CheckpointPath returns the location of the checkpoint artifact
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.GlacierDir(), c.CheckpointName())
}
