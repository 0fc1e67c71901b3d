package config

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/menta2k/frontlearn/pkg/types"
)

// Parameter names recognized in NAME VALUE parameter files
const (
	KeyGlacierName    = "GLACIER_NAME"
	KeySuffix         = "SUFFIX"
	KeyHalfWidth      = "HALF_WIDTH"
	KeyHalfHeight     = "HALF_HEIGHT"
	KeyNWindows       = "N_WINDOWS"
	KeyEpochs         = "EPOCHS"
	KeyBatches        = "BATCHES"
	KeyNRelu          = "N_RELU"
	KeyImbalanceRatio = "IMBALANCE_RATIO"
	KeyRetrain        = "RETRAIN"
	KeySeed           = "SEED"
	KeyLearningRate   = "LEARNING_RATE"
	KeyRootDir        = "ROOT_DIR"
	KeyImageExt       = "IMAGE_EXT"
)

// Parameters is the flat mapping read from a parameter file
type Parameters map[string]string

// ParseParameters reads whitespace-separated NAME VALUE lines. Blank lines
// and lines starting with '#' are skipped; tokens after the value are ignored.
func ParseParameters(r io.Reader) (Parameters, error) {
	params := make(Parameters)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 2 {
			return nil, &types.ConfigurationError{
				Field:  fields[0],
				Reason: fmt.Sprintf("line %d has no value", line),
			}
		}
		params[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, &types.ConfigurationError{Field: "parameters", Reason: "failed to read", Err: err}
	}
	return params, nil
}

// FromParameters coerces a parameter mapping into a validated Config.
// Values not present in params are taken from base (Default() when nil).
func FromParameters(params Parameters, base *Config) (*Config, error) {
	c := base.Clone()

	var err error
	str := func(key string, required bool, dst *string) {
		if err != nil {
			return
		}
		v, ok := params[key]
		if !ok {
			if required {
				err = &types.ConfigurationError{Field: key, Reason: "required"}
			}
			return
		}
		*dst = v
	}
	num := func(key string, required bool, dst *int) {
		if err != nil {
			return
		}
		v, ok := params[key]
		if !ok {
			if required {
				err = &types.ConfigurationError{Field: key, Reason: "required"}
			}
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = &types.ConfigurationError{Field: key, Value: v, Reason: "not an integer"}
			return
		}
		*dst = n
	}

	str(KeyGlacierName, true, &c.Dataset.GlacierName)
	str(KeySuffix, false, &c.Dataset.Suffix)
	str(KeyRootDir, false, &c.Dataset.RootDir)
	str(KeyImageExt, false, &c.Dataset.ImageExt)
	num(KeyHalfWidth, true, &c.Sampling.HalfWidth)
	num(KeyHalfHeight, true, &c.Sampling.HalfHeight)
	num(KeyNWindows, true, &c.Sampling.NWindows)
	num(KeyEpochs, true, &c.Training.Epochs)
	num(KeyBatches, true, &c.Training.Batches)
	num(KeyNRelu, true, &c.Training.NRelu)
	num(KeyImbalanceRatio, true, &c.Training.ImbalanceRatio)
	if err != nil {
		return nil, err
	}

	if v, ok := params[KeyRetrain]; ok {
		b, perr := parseFlag(v)
		if perr != nil {
			return nil, &types.ConfigurationError{Field: KeyRetrain, Value: v, Reason: "not a boolean flag"}
		}
		c.Training.Retrain = b
	}
	if v, ok := params[KeySeed]; ok {
		seed, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			return nil, &types.ConfigurationError{Field: KeySeed, Value: v, Reason: "not an unsigned integer"}
		}
		c.Sampling.Seed = &seed
	}
	if v, ok := params[KeyLearningRate]; ok {
		lr, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return nil, &types.ConfigurationError{Field: KeyLearningRate, Value: v, Reason: "not a number"}
		}
		c.Training.LearningRate = lr
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// parseFlag accepts y/yes/true/t/1 and n/no/false/f/0 in any case
func parseFlag(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "y", "yes", "true", "t", "1":
		return true, nil
	case "n", "no", "false", "f", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag %q", v)
}

// LoadSource loads a configuration source over base: JSON files through
// LoadFromFileOver, anything else as a NAME VALUE parameter file
func LoadSource(fs afero.Fs, path string, base *Config) (*Config, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadFromFileOver(fs, path, base)
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, &types.ConfigurationError{Field: path, Reason: "failed to open parameter file", Err: err}
	}
	defer f.Close()

	params, err := ParseParameters(f)
	if err != nil {
		return nil, err
	}
	return FromParameters(params, base)
}
