package rimage

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Kernel1D is a separable convolution kernel. Central kernels have 3 taps and forward kernels 2.
type Kernel1D []float64

// Clone returns a copy of k that does not share its backing array.
func (k Kernel1D) Clone() Kernel1D {
	if k == nil {
		return nil
	}
	return append(Kernel1D(nil), k...)
}

// Sum returns the sum of all taps.
func (k Kernel1D) Sum() float64 {
	s := 0.0
	for _, v := range k {
		s += v
	}
	return s
}

func (k Kernel1D) validate(name string, taps int) error {
	if len(k) != taps {
		return NewKernelLengthError(name, taps, len(k))
	}
	for i, v := range k {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrConfiguration, "%s kernel tap %d is not finite (%v)", name, i, v)
		}
	}
	return nil
}

// Preset identifies a family of gradient kernels.
type Preset int

const (
	// PresetCentral uses user supplied 3 tap difference and averaging kernels.
	PresetCentral Preset = iota
	// PresetSobel is difference [+1, 0, -1] with average [1, 2, 1].
	PresetSobel
	// PresetPrewitt is difference [+1, 0, -1] with average [1, 1, 1].
	PresetPrewitt
	// PresetIsotropic is difference [+1, 0, -1] with average [1, sqrt(2), 1].
	PresetIsotropic
	// PresetForward uses user supplied 2 tap kernels over a two frame window.
	PresetForward
	// PresetHornSchunck is the forward difference [+1, -1] with average [1/2, 1/2]. Each
	// derivative is then the mean of the four first differences over a 2x2x2 cube.
	PresetHornSchunck
)

var presetNames = map[Preset]string{
	PresetCentral:     "central",
	PresetSobel:       "sobel",
	PresetPrewitt:     "prewitt",
	PresetIsotropic:   "isotropic",
	PresetForward:     "forward",
	PresetHornSchunck: "hornschunck",
}

func (p Preset) String() string {
	if name, ok := presetNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Preset(%d)", int(p))
}

// Fixed reports whether the kernels of the preset cannot be replaced.
func (p Preset) Fixed() bool {
	return p != PresetCentral && p != PresetForward
}

// Taps returns the kernel length, and thus the temporal window, of the preset.
func (p Preset) Taps() int {
	if p == PresetForward || p == PresetHornSchunck {
		return 2
	}
	return 3
}

// PresetNames lists the known preset names in a stable order.
func PresetNames() []string {
	presets := lo.Keys(presetNames)
	slices.Sort(presets)
	return lo.Map(presets, func(p Preset, _ int) string { return p.String() })
}

// ParsePreset returns the preset called name, ignoring case.
func ParsePreset(name string) (Preset, error) {
	p, ok := lo.FindKeyBy(presetNames, func(_ Preset, v string) bool {
		return strings.EqualFold(v, strings.TrimSpace(name))
	})
	if !ok {
		return 0, errors.Wrapf(ErrConfiguration, "unknown gradient preset %q, expected one of %v", name, PresetNames())
	}
	return p, nil
}

// KernelPair is a difference kernel and the averaging kernel applied along the other axes.
type KernelPair struct {
	Difference Kernel1D
	Average    Kernel1D
}

// PresetKernels returns fresh copies of the kernels of a fixed preset. User configured presets
// have no kernels of their own and return an error.
func PresetKernels(preset Preset) (KernelPair, error) {
	switch preset {
	case PresetSobel:
		return KernelPair{Kernel1D{+1, 0, -1}, Kernel1D{1, 2, 1}}, nil
	case PresetPrewitt:
		return KernelPair{Kernel1D{+1, 0, -1}, Kernel1D{1, 1, 1}}, nil
	case PresetIsotropic:
		return KernelPair{Kernel1D{+1, 0, -1}, Kernel1D{1, math.Sqrt2, 1}}, nil
	case PresetHornSchunck:
		return KernelPair{Kernel1D{+1, -1}, Kernel1D{0.5, 0.5}}, nil
	case PresetCentral, PresetForward:
		return KernelPair{}, errors.Wrapf(ErrConfiguration, "the %s preset takes user supplied kernels", preset)
	default:
		return KernelPair{}, errors.Wrapf(ErrConfiguration, "unknown gradient preset %v", preset)
	}
}
