package opticalflow

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/optflow/logging"
	"go.viam.com/optflow/rimage"
	"go.viam.com/optflow/utils"
)

// pattern is a smooth texture with gradients in every direction.
func pattern(x, y float64) float64 {
	return 128 + 40*math.Sin(0.3*x+0.1*y) + 40*math.Sin(0.25*y-0.12*x)
}

// translatedFrames renders n frames of pattern moving by (dx, dy) per frame.
func translatedFrames(shape rimage.Shape, n int, dx, dy float64) []*mat.Dense {
	frames := make([]*mat.Dense, n)
	for t := range frames {
		f := rimage.NewField(shape)
		for y := 0; y < shape.Height; y++ {
			for x := 0; x < shape.Width; x++ {
				f.Set(y, x, pattern(float64(x)-float64(t)*dx, float64(y)-float64(t)*dy))
			}
		}
		frames[t] = f
	}
	return frames
}

func randomFlow(seed int64, shape rimage.Shape) *FlowField {
	rnd := rand.New(rand.NewSource(seed))
	flow := NewFlowField(shape)
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			flow.U.Set(y, x, rnd.Float64()*2-1)
			flow.V.Set(y, x, rnd.Float64()*2-1)
		}
	}
	return flow
}

// interiorMean averages m away from a border of the given margin.
func interiorMean(m *mat.Dense, margin int) float64 {
	h, w := m.Dims()
	sub := m.Slice(margin, h-margin, margin, w-margin)
	r, c := sub.Dims()
	return mat.Sum(sub) / float64(r*c)
}

func newSolvers(t *testing.T, shape rimage.Shape) []Solver {
	t.Helper()
	logger := logging.NewTestLogger(t)
	vanilla, err := NewVanillaHornSchunck(shape, logger)
	test.That(t, err, test.ShouldBeNil)
	sobel, err := NewHornSchunck(shape, logger)
	test.That(t, err, test.ShouldBeNil)
	return []Solver{vanilla, sobel}
}

func TestSolverVariants(t *testing.T) {
	solvers := newSolvers(t, rimage.Shape{Height: 4, Width: 4})
	test.That(t, solvers[0].Frames(), test.ShouldEqual, 2)
	test.That(t, solvers[0].Laplacian(), test.ShouldEqual, rimage.LaplacianHornSchunck)
	test.That(t, solvers[1].Frames(), test.ShouldEqual, 3)
	test.That(t, solvers[1].Laplacian(), test.ShouldEqual, rimage.LaplacianOpenCV)

	_, err := NewHornSchunck(rimage.Shape{}, nil)
	test.That(t, errors.Is(err, rimage.ErrConfiguration), test.ShouldBeTrue)
}

func TestZeroIterationsKeepsSeed(t *testing.T) {
	shape := rimage.Shape{Height: 6, Width: 7}
	for _, s := range newSolvers(t, shape) {
		frames := translatedFrames(shape, s.Frames(), 1, 0)
		flow := randomFlow(1, shape)
		seedU, seedV := mat.DenseCopyOf(flow.U), mat.DenseCopyOf(flow.V)
		test.That(t, s.Estimate(10, 0, frames, flow), test.ShouldBeNil)
		test.That(t, mat.Equal(flow.U, seedU), test.ShouldBeTrue)
		test.That(t, mat.Equal(flow.V, seedV), test.ShouldBeTrue)
	}
}

func TestZeroFramesGiveZeroFlow(t *testing.T) {
	shape := rimage.Shape{Height: 5, Width: 5}
	s, err := NewHornSchunck(shape, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	zero := rimage.NewField(shape)
	flow, err := s.Flow(1, 5, []*mat.Dense{zero, zero, zero})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(flow.U, zero), test.ShouldBeTrue)
	test.That(t, mat.Equal(flow.V, zero), test.ShouldBeTrue)
}

func TestShiftedImagesConverge(t *testing.T) {
	shape := rimage.Shape{Height: 48, Width: 48}
	const dx, dy = 0.5, -0.25

	for _, tc := range []struct {
		name       string
		alpha      float64
		iterations int
	}{
		{"vanilla", 5, 1000},
		{"sobel", 100, 1000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var s Solver
			var err error
			if tc.name == "vanilla" {
				s, err = NewVanillaHornSchunck(shape, logging.NewTestLogger(t))
			} else {
				s, err = NewHornSchunck(shape, logging.NewTestLogger(t))
			}
			test.That(t, err, test.ShouldBeNil)
			frames := translatedFrames(shape, s.Frames(), dx, dy)
			flow, err := s.Flow(tc.alpha, tc.iterations, frames)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, interiorMean(flow.U, 12), test.ShouldAlmostEqual, dx, 0.1)
			test.That(t, interiorMean(flow.V, 12), test.ShouldAlmostEqual, dy, 0.1)
		})
	}
}

func TestEstimateWarmStart(t *testing.T) {
	shape := rimage.Shape{Height: 16, Width: 20}
	s, err := NewHornSchunck(shape, nil)
	test.That(t, err, test.ShouldBeNil)
	frames := translatedFrames(shape, 3, 0.3, 0.2)

	once, err := s.Flow(50, 20, frames)
	test.That(t, err, test.ShouldBeNil)

	split := NewFlowField(shape)
	test.That(t, s.Estimate(50, 12, frames, split), test.ShouldBeNil)
	test.That(t, s.Estimate(50, 8, frames, split), test.ShouldBeNil)
	test.That(t, mat.Equal(once.U, split.U), test.ShouldBeTrue)
	test.That(t, mat.Equal(once.V, split.V), test.ShouldBeTrue)
}

func TestEstimateLogs(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	shape := rimage.Shape{Height: 4, Width: 4}
	s, err := NewVanillaHornSchunck(shape, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = s.Flow(2, 3, translatedFrames(shape, 2, 0.5, 0))
	test.That(t, err, test.ShouldBeNil)

	entries := logs.FilterMessage("estimated flow").All()
	test.That(t, len(entries), test.ShouldEqual, 1)
	fields := entries[0].ContextMap()
	test.That(t, fields["iterations"], test.ShouldEqual, int64(3))
	test.That(t, fields["alpha"], test.ShouldEqual, 2.0)
	test.That(t, fields["shape"], test.ShouldEqual, "(4, 4)")
	test.That(t, fields["solver"], test.ShouldEqual, "vanilla")
}

func TestEstimateErrors(t *testing.T) {
	shape := rimage.Shape{Height: 5, Width: 6}
	s, err := NewHornSchunck(shape, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	frames := translatedFrames(shape, 3, 1, 0)

	for _, alpha := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err = s.Flow(alpha, 1, frames)
		test.That(t, errors.Is(err, rimage.ErrConfiguration), test.ShouldBeTrue)
	}
	_, err = s.Flow(1, -1, frames)
	test.That(t, errors.Is(err, rimage.ErrConfiguration), test.ShouldBeTrue)

	_, err = s.Flow(1, 1, frames[:2])
	test.That(t, errors.Is(err, rimage.ErrShapeMismatch), test.ShouldBeTrue)

	bad := []*mat.Dense{frames[0], frames[1], rimage.NewField(rimage.Shape{5, 5})}
	_, err = s.Flow(1, 1, bad)
	test.That(t, errors.Is(err, rimage.ErrShapeMismatch), test.ShouldBeTrue)
	_, err = s.Flow(1, 1, []*mat.Dense{nil, frames[1], frames[2]})
	test.That(t, errors.Is(err, rimage.ErrShapeMismatch), test.ShouldBeTrue)

	err = s.Estimate(1, 1, frames, nil)
	test.That(t, errors.Is(err, rimage.ErrPartialOutputs), test.ShouldBeTrue)
	err = s.Estimate(1, 1, frames, &FlowField{U: rimage.NewField(shape)})
	test.That(t, errors.Is(err, rimage.ErrPartialOutputs), test.ShouldBeTrue)
	err = s.Estimate(1, 1, frames, NewFlowField(rimage.Shape{2, 2}))
	test.That(t, errors.Is(err, rimage.ErrShapeMismatch), test.ShouldBeTrue)
}

func TestSolverFollowsFrameShape(t *testing.T) {
	s, err := NewHornSchunck(rimage.Shape{Height: 4, Width: 4}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	shape := rimage.Shape{Height: 9, Width: 11}
	flow, err := s.Flow(10, 3, translatedFrames(shape, 3, 0.2, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, flow.Shape(), test.ShouldResemble, shape)
	test.That(t, s.Shape(), test.ShouldResemble, shape)
}

// referenceGradients sums every tap of the diff x avg x avg cube directly, with indices clamped
// to the field. frames has one entry per tap, oldest first.
func referenceGradients(frames []*mat.Dense, diff, avg []float64) (ex, ey, et *mat.Dense) {
	n := len(diff)
	h, w := frames[0].Dims()
	ex, ey, et = mat.NewDense(h, w, nil), mat.NewDense(h, w, nil), mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var gx, gy, gt float64
			for kt := 0; kt < n; kt++ {
				f := frames[n-1-kt]
				for ky := 0; ky < n; ky++ {
					sy := utils.ClampInt(y+n/2-ky, 0, h-1)
					for kx := 0; kx < n; kx++ {
						p := f.At(sy, utils.ClampInt(x+n/2-kx, 0, w-1))
						gx += diff[kx] * avg[ky] * avg[kt] * p
						gy += avg[kx] * diff[ky] * avg[kt] * p
						gt += avg[kx] * avg[ky] * diff[kt] * p
					}
				}
			}
			ex.Set(y, x, gx)
			ey.Set(y, x, gy)
			et.Set(y, x, gt)
		}
	}
	return ex, ey, et
}

// referenceAverage is the 3x3 weighted neighbourhood mean with clamped indices.
func referenceAverage(m *mat.Dense, weights [3][3]float64) *mat.Dense {
	h, w := m.Dims()
	out := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += weights[dy+1][dx+1] * m.At(utils.ClampInt(y+dy, 0, h-1), utils.ClampInt(x+dx, 0, w-1))
				}
			}
			out.Set(y, x, sum)
		}
	}
	return out
}

// referenceEstimate runs Jacobi sweeps where every update reads the averages of the previous
// sweep only.
func referenceEstimate(
	frames []*mat.Dense,
	diff, avg []float64,
	weights [3][3]float64,
	alpha float64,
	iterations int,
	flow *FlowField,
) *FlowField {
	ex, ey, et := referenceGradients(frames, diff, avg)
	u, v := mat.DenseCopyOf(flow.U), mat.DenseCopyOf(flow.V)
	h, w := u.Dims()
	for k := 0; k < iterations; k++ {
		uBar, vBar := referenceAverage(u, weights), referenceAverage(v, weights)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				gx, gy := ex.At(y, x), ey.At(y, x)
				c := (gx*uBar.At(y, x) + gy*vBar.At(y, x) + et.At(y, x)) / (alpha*alpha + gx*gx + gy*gy)
				u.Set(y, x, uBar.At(y, x)-gx*c)
				v.Set(y, x, vBar.At(y, x)-gy*c)
			}
		}
	}
	return &FlowField{U: u, V: v}
}

func randomFrames(seed int64, shape rimage.Shape, n int) []*mat.Dense {
	rnd := rand.New(rand.NewSource(seed))
	frames := make([]*mat.Dense, n)
	for i := range frames {
		f := rimage.NewField(shape)
		for y := 0; y < shape.Height; y++ {
			for x := 0; x < shape.Width; x++ {
				f.Set(y, x, rnd.Float64()*255)
			}
		}
		frames[i] = f
	}
	return frames
}

func shouldMatchField(t *testing.T, actual, expected *mat.Dense, tol float64) {
	t.Helper()
	test.That(t, rimage.ShapeOf(actual), test.ShouldResemble, rimage.ShapeOf(expected))
	h, w := expected.Dims()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			test.That(t, actual.At(y, x), test.ShouldAlmostEqual, expected.At(y, x), tol)
		}
	}
}

func TestEstimateMatchesReference(t *testing.T) {
	shape := rimage.Shape{Height: 7, Width: 9}
	const (
		alpha      = 3.
		iterations = 2
		tol        = 1e-9
	)
	openCV := [3][3]float64{
		{0, 0.25, 0},
		{0.25, 0, 0.25},
		{0, 0.25, 0},
	}
	hornSchunck := [3][3]float64{
		{1. / 12, 1. / 6, 1. / 12},
		{1. / 6, 0, 1. / 6},
		{1. / 12, 1. / 6, 1. / 12},
	}
	vanilla, err := NewVanillaHornSchunck(shape, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	sobel, err := NewHornSchunck(shape, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	for _, tc := range []struct {
		name    string
		solver  Solver
		preset  rimage.Preset
		diff    []float64
		avg     []float64
		weights [3][3]float64
	}{
		{"sobel", sobel, rimage.PresetSobel, []float64{1, 0, -1}, []float64{1, 2, 1}, openCV},
		{"vanilla", vanilla, rimage.PresetHornSchunck, []float64{1, -1}, []float64{0.5, 0.5}, hornSchunck},
	} {
		t.Run(tc.name, func(t *testing.T) {
			frames := randomFrames(7, shape, tc.solver.Frames())

			gradient, err := rimage.NewGradient(tc.preset, shape)
			test.That(t, err, test.ShouldBeNil)
			grads, err := gradient.Evaluate(nil, frames...)
			test.That(t, err, test.ShouldBeNil)
			ex, ey, et := referenceGradients(frames, tc.diff, tc.avg)
			shouldMatchField(t, grads.Ex, ex, tol)
			shouldMatchField(t, grads.Ey, ey, tol)
			shouldMatchField(t, grads.Et, et, tol)

			flow, err := tc.solver.Flow(alpha, iterations, frames)
			test.That(t, err, test.ShouldBeNil)
			expected := referenceEstimate(frames, tc.diff, tc.avg, tc.weights, alpha, iterations, NewFlowField(shape))
			shouldMatchField(t, flow.U, expected.U, tol)
			shouldMatchField(t, flow.V, expected.V, tol)

			// a non-zero seed makes the first sweep depend on the neighbourhood average too
			seeded := randomFlow(11, shape)
			expected = referenceEstimate(frames, tc.diff, tc.avg, tc.weights, alpha, iterations, seeded)
			test.That(t, tc.solver.Estimate(alpha, iterations, frames, seeded), test.ShouldBeNil)
			shouldMatchField(t, seeded.U, expected.U, tol)
			shouldMatchField(t, seeded.V, expected.V, tol)
		})
	}
}
