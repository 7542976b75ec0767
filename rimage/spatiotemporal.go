package rimage

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Gradients holds the three partial derivatives of brightness over a window of frames.
type Gradients struct {
	Ex *mat.Dense
	Ey *mat.Dense
	Et *mat.Dense
}

type outputMode int

const (
	outputAllocate outputMode = iota
	outputUseProvided
)

func resolveOutputMode(out *Gradients) (outputMode, error) {
	if out == nil {
		return outputAllocate, nil
	}
	if out.Ex == nil || out.Ey == nil || out.Et == nil {
		return 0, NewPartialOutputsError("ex", "ey", "et")
	}
	return outputUseProvided, nil
}

// SpatioTemporalGradient computes (Ex, Ey, Et) over a temporal window of frames using a
// separable difference kernel h' and averaging kernel h:
//
//	Ex = h'(x) h(y) h(t)
//	Ey = h(x) h'(y) h(t)
//	Et = h(x) h(y) h'(t)
//
// Every preset shares the one evaluation routine and differs only in its kernels. The estimator
// keeps scratch buffers sized to its shape so it is not safe for concurrent use.
type SpatioTemporalGradient struct {
	preset Preset
	shape  Shape
	diff   Kernel1D
	avg    Kernel1D

	temporalAvg  *mat.Dense
	temporalDiff *mat.Dense
	scratch      *mat.Dense
}

// NewGradient returns the estimator of a fixed preset for frames of the given shape.
func NewGradient(preset Preset, shape Shape) (*SpatioTemporalGradient, error) {
	pair, err := PresetKernels(preset)
	if err != nil {
		return nil, err
	}
	return newGradient(preset, pair.Difference, pair.Average, shape)
}

// NewCentralGradient returns an estimator over three frames with user supplied 3 tap kernels.
func NewCentralGradient(diff, avg Kernel1D, shape Shape) (*SpatioTemporalGradient, error) {
	return newGradient(PresetCentral, diff, avg, shape)
}

// NewForwardGradient returns an estimator over two frames with user supplied 2 tap kernels.
func NewForwardGradient(diff, avg Kernel1D, shape Shape) (*SpatioTemporalGradient, error) {
	return newGradient(PresetForward, diff, avg, shape)
}

// NewSobelGradient uses difference [+1, 0, -1] and average [1, 2, 1].
func NewSobelGradient(shape Shape) (*SpatioTemporalGradient, error) {
	return NewGradient(PresetSobel, shape)
}

// NewPrewittGradient uses difference [+1, 0, -1] and average [1, 1, 1].
func NewPrewittGradient(shape Shape) (*SpatioTemporalGradient, error) {
	return NewGradient(PresetPrewitt, shape)
}

// NewIsotropicGradient uses difference [+1, 0, -1] and average [1, sqrt(2), 1].
func NewIsotropicGradient(shape Shape) (*SpatioTemporalGradient, error) {
	return NewGradient(PresetIsotropic, shape)
}

// NewHornSchunckGradient is the two frame estimator of the original Horn and Schunck paper.
func NewHornSchunckGradient(shape Shape) (*SpatioTemporalGradient, error) {
	return NewGradient(PresetHornSchunck, shape)
}

func newGradient(preset Preset, diff, avg Kernel1D, shape Shape) (*SpatioTemporalGradient, error) {
	taps := preset.Taps()
	if err := diff.validate("difference", taps); err != nil {
		return nil, err
	}
	if err := avg.validate("average", taps); err != nil {
		return nil, err
	}
	g := &SpatioTemporalGradient{
		preset: preset,
		diff:   diff.Clone(),
		avg:    avg.Clone(),
	}
	if err := g.SetShape(shape); err != nil {
		return nil, err
	}
	return g, nil
}

// Preset returns the kernel family of the estimator.
func (g *SpatioTemporalGradient) Preset() Preset {
	return g.preset
}

// Frames returns the number of frames Evaluate expects.
func (g *SpatioTemporalGradient) Frames() int {
	return len(g.diff)
}

// Shape returns the shape of the frames Evaluate expects.
func (g *SpatioTemporalGradient) Shape() Shape {
	return g.shape
}

// SetShape changes the expected frame shape and resizes the scratch buffers.
func (g *SpatioTemporalGradient) SetShape(shape Shape) error {
	if err := shape.Validate(); err != nil {
		return err
	}
	if shape == g.shape && g.scratch != nil {
		return nil
	}
	g.shape = shape
	g.temporalAvg = NewField(shape)
	g.temporalDiff = NewField(shape)
	g.scratch = NewField(shape)
	return nil
}

// Difference returns a copy of the difference kernel.
func (g *SpatioTemporalGradient) Difference() Kernel1D {
	return g.diff.Clone()
}

// Average returns a copy of the averaging kernel.
func (g *SpatioTemporalGradient) Average() Kernel1D {
	return g.avg.Clone()
}

// SetDifference replaces the difference kernel of a user configured estimator.
func (g *SpatioTemporalGradient) SetDifference(k Kernel1D) error {
	if g.preset.Fixed() {
		return NewFixedKernelError(g.preset)
	}
	if err := k.validate("difference", g.preset.Taps()); err != nil {
		return err
	}
	g.diff = k.Clone()
	return nil
}

// SetAverage replaces the averaging kernel of a user configured estimator.
func (g *SpatioTemporalGradient) SetAverage(k Kernel1D) error {
	if g.preset.Fixed() {
		return NewFixedKernelError(g.preset)
	}
	if err := k.validate("average", g.preset.Taps()); err != nil {
		return err
	}
	g.avg = k.Clone()
	return nil
}

// Evaluate computes the gradients of the window of frames, oldest first. If out is nil, new
// fields are allocated; otherwise all three of its fields must be set and are overwritten.
func (g *SpatioTemporalGradient) Evaluate(out *Gradients, frames ...*mat.Dense) (*Gradients, error) {
	mode, err := resolveOutputMode(out)
	if err != nil {
		return nil, err
	}
	if len(frames) != g.Frames() {
		return nil, NewFrameCountError(g.Frames(), len(frames))
	}
	for i, f := range frames {
		if err := CheckShape(frameName(i), f, g.shape); err != nil {
			return nil, err
		}
	}

	switch mode {
	case outputAllocate:
		out = &Gradients{Ex: NewField(g.shape), Ey: NewField(g.shape), Et: NewField(g.shape)}
	case outputUseProvided:
		for _, o := range []struct {
			name string
			m    *mat.Dense
		}{{"ex", out.Ex}, {"ey", out.Ey}, {"et", out.Et}} {
			if err := CheckShape(o.name, o.m, g.shape); err != nil {
				return nil, err
			}
		}
	}

	if err := ConvolveFrames(g.temporalAvg, frames, g.avg); err != nil {
		return nil, err
	}
	if err := ConvolveFrames(g.temporalDiff, frames, g.diff); err != nil {
		return nil, err
	}

	steps := []struct {
		src        *mat.Dense
		first      Kernel1D
		firstAxis  Axis
		second     Kernel1D
		secondAxis Axis
		dst        *mat.Dense
	}{
		{g.temporalAvg, g.avg, AxisY, g.diff, AxisX, out.Ex},
		{g.temporalAvg, g.avg, AxisX, g.diff, AxisY, out.Ey},
		{g.temporalDiff, g.avg, AxisY, g.avg, AxisX, out.Et},
	}
	for _, s := range steps {
		if err := Convolve1D(g.scratch, s.src, s.first, s.firstAxis); err != nil {
			return nil, err
		}
		if err := Convolve1D(s.dst, g.scratch, s.second, s.secondAxis); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func frameName(i int) string {
	return fmt.Sprintf("frame %d", i)
}
