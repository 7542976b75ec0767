// Package opticalflow estimates dense velocity fields between consecutive frames with the
// Horn and Schunck method.
//
// Two variants are provided. VanillaHornSchunck follows the 1981 paper: two frames, derivatives
// taken as the mean of four forward differences over a 2x2x2 cube, and the 1/6, 1/12 weighted
// neighbourhood average. HornSchunck takes three frames with Sobel derivatives and the four
// neighbour average.
package opticalflow

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/optflow/logging"
	"go.viam.com/optflow/rimage"
	"go.viam.com/optflow/utils"
)

// FlowField is a dense velocity field. U is the horizontal and V the vertical displacement in
// pixels per frame.
type FlowField struct {
	U *mat.Dense
	V *mat.Dense
}

// NewFlowField returns a zero flow of the given shape.
func NewFlowField(shape rimage.Shape) *FlowField {
	return &FlowField{U: rimage.NewField(shape), V: rimage.NewField(shape)}
}

// Shape returns the shape of the horizontal component.
func (f *FlowField) Shape() rimage.Shape {
	return rimage.ShapeOf(f.U)
}

// check verifies that both components are present and have the given shape.
func (f *FlowField) check(shape rimage.Shape) error {
	if f == nil || f.U == nil || f.V == nil {
		return rimage.NewPartialOutputsError("u", "v")
	}
	if err := rimage.CheckShape("u", f.U, shape); err != nil {
		return err
	}
	return rimage.CheckShape("v", f.V, shape)
}

// Solver estimates optical flow from a window of frames.
type Solver interface {
	// Frames returns the number of frames every call expects, oldest first.
	Frames() int
	// Laplacian returns the neighbourhood average used by the smoothness term.
	Laplacian() rimage.LaplacianAverage
	// Shape returns the frame shape of the last call, or the construction shape.
	Shape() rimage.Shape
	// Estimate refines flow in place, starting from its current value, for the given number of
	// iterations with smoothness weight alpha.
	Estimate(alpha float64, iterations int, frames []*mat.Dense, flow *FlowField) error
	// Flow is Estimate starting from a zero flow.
	Flow(alpha float64, iterations int, frames []*mat.Dense) (*FlowField, error)
	// EvalEc2 returns the squared smoothness error of flow.
	EvalEc2(flow *FlowField) (*mat.Dense, error)
	// EvalEb returns the brightness constancy error of flow over frames.
	EvalEb(frames []*mat.Dense, flow *FlowField) (*mat.Dense, error)
}

// solver holds everything the two variants share. It keeps scratch buffers sized to the last
// frame shape so it is not safe for concurrent use.
type solver struct {
	name      string
	gradient  *rimage.SpatioTemporalGradient
	laplacian rimage.LaplacianAverage
	logger    logging.Logger

	grads       rimage.Gradients
	uBar        *mat.Dense
	vBar        *mat.Dense
	denominator *mat.Dense
}

// VanillaHornSchunck is the two frame solver of the 1981 paper.
type VanillaHornSchunck struct {
	solver
}

// HornSchunck is the three frame solver using Sobel derivatives.
type HornSchunck struct {
	solver
}

var (
	_ Solver = (*VanillaHornSchunck)(nil)
	_ Solver = (*HornSchunck)(nil)
)

// NewVanillaHornSchunck returns a two frame solver with buffers preallocated for shape.
func NewVanillaHornSchunck(shape rimage.Shape, logger logging.Logger) (*VanillaHornSchunck, error) {
	s, err := newSolver("vanilla", rimage.PresetHornSchunck, rimage.LaplacianHornSchunck, shape, logger)
	if err != nil {
		return nil, err
	}
	return &VanillaHornSchunck{*s}, nil
}

// NewHornSchunck returns a three frame Sobel solver with buffers preallocated for shape.
func NewHornSchunck(shape rimage.Shape, logger logging.Logger) (*HornSchunck, error) {
	s, err := newSolver("sobel", rimage.PresetSobel, rimage.LaplacianOpenCV, shape, logger)
	if err != nil {
		return nil, err
	}
	return &HornSchunck{*s}, nil
}

func newSolver(
	name string,
	preset rimage.Preset,
	laplacian rimage.LaplacianAverage,
	shape rimage.Shape,
	logger logging.Logger,
) (*solver, error) {
	gradient, err := rimage.NewGradient(preset, shape)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global().Sublogger("opticalflow")
	}
	s := &solver{
		name:      name,
		gradient:  gradient,
		laplacian: laplacian,
		logger:    logger,
	}
	s.allocate(shape)
	return s, nil
}

func (s *solver) allocate(shape rimage.Shape) {
	s.grads = rimage.Gradients{
		Ex: rimage.NewField(shape),
		Ey: rimage.NewField(shape),
		Et: rimage.NewField(shape),
	}
	s.uBar = rimage.NewField(shape)
	s.vBar = rimage.NewField(shape)
	s.denominator = rimage.NewField(shape)
}

// Frames returns the number of frames every call expects.
func (s *solver) Frames() int {
	return s.gradient.Frames()
}

// Laplacian returns the neighbourhood average of the smoothness term.
func (s *solver) Laplacian() rimage.LaplacianAverage {
	return s.laplacian
}

// Shape returns the shape the scratch buffers are currently sized for.
func (s *solver) Shape() rimage.Shape {
	return s.gradient.Shape()
}

// checkFrames validates the window and returns its shape.
func (s *solver) checkFrames(frames []*mat.Dense) (rimage.Shape, error) {
	if len(frames) != s.Frames() {
		return rimage.Shape{}, rimage.NewFrameCountError(s.Frames(), len(frames))
	}
	shape := rimage.ShapeOf(frames[0])
	if shape.Size() == 0 {
		return rimage.Shape{}, rimage.NewEmptyFieldError(frameName(0))
	}
	for i, f := range frames[1:] {
		if err := rimage.CheckShape(frameName(i+1), f, shape); err != nil {
			return rimage.Shape{}, err
		}
	}
	return shape, nil
}

// resize follows the frame shape, reallocating the scratch buffers when it changes.
func (s *solver) resize(shape rimage.Shape) error {
	if shape == s.gradient.Shape() {
		return nil
	}
	if err := s.gradient.SetShape(shape); err != nil {
		return err
	}
	s.allocate(shape)
	return nil
}

func checkParameters(alpha float64, iterations int) error {
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return errors.Wrapf(rimage.ErrConfiguration, "alpha must be positive and finite, got %v", alpha)
	}
	if iterations < 0 {
		return errors.Wrapf(rimage.ErrConfiguration, "iterations cannot be negative, got %d", iterations)
	}
	return nil
}

// Estimate runs the Horn and Schunck fixed point iteration, refining flow in place:
//
//	ubar, vbar = L(u), L(v)
//	c = (Ex*ubar + Ey*vbar + Et) / (alpha^2 + Ex^2 + Ey^2)
//	u, v = ubar - Ex*c, vbar - Ey*c
//
// Each sweep reads only the averages of the previous sweep, so the result does not depend on
// the order rows are visited in. Zero iterations leave flow untouched.
func (s *solver) Estimate(alpha float64, iterations int, frames []*mat.Dense, flow *FlowField) error {
	start := time.Now()
	if err := checkParameters(alpha, iterations); err != nil {
		return err
	}
	shape, err := s.checkFrames(frames)
	if err != nil {
		return err
	}
	if err := flow.check(shape); err != nil {
		return err
	}
	if err := s.resize(shape); err != nil {
		return err
	}
	if iterations > 0 {
		if err := s.iterate(alpha, iterations, frames, flow); err != nil {
			return err
		}
	}

	s.logger.Debugw("estimated flow",
		"solver", s.name,
		"alpha", alpha,
		"iterations", iterations,
		"shape", shape.String(),
		"duration", time.Since(start),
	)
	return nil
}

// iterate runs the sweeps of Estimate on validated arguments.
func (s *solver) iterate(alpha float64, iterations int, frames []*mat.Dense, flow *FlowField) error {
	if _, err := s.gradient.Evaluate(&s.grads, frames...); err != nil {
		return err
	}
	shape := s.gradient.Shape()

	alpha2 := utils.Square(alpha)
	ex, ey, et := s.grads.Ex.RawMatrix(), s.grads.Ey.RawMatrix(), s.grads.Et.RawMatrix()
	den := s.denominator.RawMatrix()
	for i, e := range ex.Data {
		den.Data[i] = alpha2 + utils.Square(e) + utils.Square(ey.Data[i])
	}

	u, v := flow.U.RawMatrix(), flow.V.RawMatrix()
	uBar, vBar := s.uBar.RawMatrix(), s.vBar.RawMatrix()
	w := shape.Width
	update := func(y int) {
		ur, vr := u.Data[y*u.Stride:y*u.Stride+w], v.Data[y*v.Stride:y*v.Stride+w]
		ubr, vbr := uBar.Data[y*uBar.Stride:y*uBar.Stride+w], vBar.Data[y*vBar.Stride:y*vBar.Stride+w]
		off := y * ex.Stride
		for x := 0; x < w; x++ {
			exv, eyv := ex.Data[off+x], ey.Data[off+x]
			c := (exv*ubr[x] + eyv*vbr[x] + et.Data[off+x]) / den.Data[off+x]
			ur[x] = ubr[x] - exv*c
			vr[x] = vbr[x] - eyv*c
		}
	}

	for k := 0; k < iterations; k++ {
		if err := s.laplacian.Apply(s.uBar, flow.U); err != nil {
			return err
		}
		if err := s.laplacian.Apply(s.vBar, flow.V); err != nil {
			return err
		}
		if err := utils.ParallelForEachRow(shape.Height, shape.Width, update); err != nil {
			return err
		}
	}
	return nil
}

// Flow runs Estimate from a zero flow and returns the result.
func (s *solver) Flow(alpha float64, iterations int, frames []*mat.Dense) (*FlowField, error) {
	if err := checkParameters(alpha, iterations); err != nil {
		return nil, err
	}
	shape, err := s.checkFrames(frames)
	if err != nil {
		return nil, err
	}
	flow := NewFlowField(shape)
	if err := s.Estimate(alpha, iterations, frames, flow); err != nil {
		return nil, err
	}
	return flow, nil
}

func frameName(i int) string {
	return fmt.Sprintf("frame %d", i)
}
