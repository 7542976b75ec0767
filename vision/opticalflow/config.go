package opticalflow

import (
	"encoding/json"
	"math"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/optflow/logging"
	"go.viam.com/optflow/rimage"
)

const (
	// MethodSobel selects HornSchunck, the three frame Sobel solver.
	MethodSobel = "sobel"
	// MethodVanilla selects VanillaHornSchunck, the two frame solver of the paper.
	MethodVanilla = "vanilla"
)

// Methods lists the solver names a Config accepts.
var Methods = []string{MethodSobel, MethodVanilla}

// Config contains the parameters of a flow estimation run.
type Config struct {
	Method     string  `json:"method"`
	Alpha      float64 `json:"alpha"`
	Iterations int     `json:"iterations"`
	// BlurSigma pre-smooths every frame with a Gaussian when positive.
	BlurSigma float64 `json:"blur_sigma,omitempty"`
	// ResizeWidth scales frames to this width, keeping the aspect ratio, when positive.
	ResizeWidth uint `json:"resize_width,omitempty"`
}

// DefaultConfig returns the Sobel solver with alpha 100 and 160 iterations.
func DefaultConfig() *Config {
	return &Config{
		Method:     MethodSobel,
		Alpha:      100,
		Iterations: 160,
	}
}

// Validate ensures all parts of the config are valid. The path names the config in errors.
func (cfg *Config) Validate(path string) error {
	if !lo.Contains(Methods, cfg.Method) {
		return errors.Wrapf(rimage.ErrConfiguration, "%s: method %q must be one of %v", path, cfg.Method, Methods)
	}
	if !(cfg.Alpha > 0) || math.IsInf(cfg.Alpha, 0) {
		return errors.Wrapf(rimage.ErrConfiguration, "%s: alpha must be positive, got %v", path, cfg.Alpha)
	}
	if cfg.Iterations < 0 {
		return errors.Wrapf(rimage.ErrConfiguration, "%s: iterations cannot be negative, got %d", path, cfg.Iterations)
	}
	if cfg.BlurSigma < 0 || math.IsNaN(cfg.BlurSigma) || math.IsInf(cfg.BlurSigma, 0) {
		return errors.Wrapf(rimage.ErrConfiguration, "%s: blur_sigma must be zero or positive, got %v", path, cfg.BlurSigma)
	}
	return nil
}

// Frames returns the number of frames the configured method expects.
func (cfg *Config) Frames() int {
	if cfg.Method == MethodVanilla {
		return 2
	}
	return 3
}

// NewSolver builds the configured solver for frames of the given shape.
func (cfg *Config) NewSolver(shape rimage.Shape, logger logging.Logger) (Solver, error) {
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	if cfg.Method == MethodVanilla {
		return NewVanillaHornSchunck(shape, logger)
	}
	return NewHornSchunck(shape, logger)
}

// LoadConfig loads a configuration from a json file. Missing fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	configFile, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	jsonParser := json.NewDecoder(configFile)
	jsonParser.DisallowUnknownFields()
	if err := jsonParser.Decode(config); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", path)
	}
	if err := config.Validate(path); err != nil {
		return nil, err
	}
	return config, nil
}

// DecodeAttributes builds a configuration from loosely typed attributes, as found in a larger
// json document. Missing fields keep their defaults and unknown keys are an error.
func DecodeAttributes(attributes map[string]interface{}) (*Config, error) {
	config := DefaultConfig()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           config,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(rimage.ErrConfiguration, err.Error())
	}
	if len(md.Unused) > 0 {
		return nil, errors.Wrapf(rimage.ErrConfiguration, "unknown attributes %v", md.Unused)
	}
	if err := config.Validate("attributes"); err != nil {
		return nil, err
	}
	return config, nil
}
