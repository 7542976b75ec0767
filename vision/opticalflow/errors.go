package opticalflow

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/optflow/rimage"
	"go.viam.com/optflow/utils"
)

// EvalEc2 returns (ubar - u)^2 + (vbar - v)^2 where ubar and vbar are the neighbourhood averages
// of the solver. This is the squared smoothness error the iteration minimizes.
func (s *solver) EvalEc2(flow *FlowField) (*mat.Dense, error) {
	if flow == nil || flow.U == nil || flow.V == nil {
		return nil, rimage.NewPartialOutputsError("u", "v")
	}
	shape := flow.Shape()
	if shape.Size() == 0 {
		return nil, rimage.NewEmptyFieldError("u")
	}
	if err := flow.check(shape); err != nil {
		return nil, err
	}
	uBar, err := s.laplacian.Average(flow.U)
	if err != nil {
		return nil, err
	}
	vBar, err := s.laplacian.Average(flow.V)
	if err != nil {
		return nil, err
	}
	uBar.Sub(uBar, flow.U)
	vBar.Sub(vBar, flow.V)
	uBar.MulElem(uBar, uBar)
	vBar.MulElem(vBar, vBar)
	uBar.Add(uBar, vBar)
	return uBar, nil
}

// EvalEb returns Ex*u + Ey*v + Et, the brightness constancy error of flow, with the derivatives
// recomputed from frames.
func (s *solver) EvalEb(frames []*mat.Dense, flow *FlowField) (*mat.Dense, error) {
	shape, err := s.checkFrames(frames)
	if err != nil {
		return nil, err
	}
	if err := flow.check(shape); err != nil {
		return nil, err
	}
	if err := s.resize(shape); err != nil {
		return nil, err
	}
	grads, err := s.gradient.Evaluate(nil, frames...)
	if err != nil {
		return nil, err
	}
	out := grads.Et
	var tmp mat.Dense
	tmp.MulElem(grads.Ex, flow.U)
	out.Add(out, &tmp)
	tmp.MulElem(grads.Ey, flow.V)
	out.Add(out, &tmp)
	return out, nil
}

// FlowError warps i2 back by the flow and returns i2(x - u, y - v) - i1(x, y) for every pixel.
// The warped image is sampled bilinearly with coordinates clamped to the image, so samples
// displaced past the border take the edge value. A NaN displacement gives a NaN error.
func FlowError(i1, i2, u, v *mat.Dense) (*mat.Dense, error) {
	shape := rimage.ShapeOf(i1)
	if shape.Size() == 0 {
		return nil, rimage.NewEmptyFieldError("i1")
	}
	for _, f := range []struct {
		name string
		m    *mat.Dense
	}{{"i2", i2}, {"u", u}, {"v", v}} {
		if err := rimage.CheckShape(f.name, f.m, shape); err != nil {
			return nil, err
		}
	}

	out := rimage.NewField(shape)
	raw := out.RawMatrix()
	maxX, maxY := float64(shape.Width-1), float64(shape.Height-1)
	err := utils.ParallelForEachRow(shape.Height, shape.Width, func(y int) {
		row := raw.Data[y*raw.Stride : y*raw.Stride+shape.Width]
		for x := range row {
			sx := float64(x) - u.At(y, x)
			sy := float64(y) - v.At(y, x)
			if math.IsNaN(sx) || math.IsNaN(sy) {
				row[x] = math.NaN()
				continue
			}
			row[x] = bilinear(i2, utils.ClampF64(sx, 0, maxX), utils.ClampF64(sy, 0, maxY)) - i1.At(y, x)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// bilinear samples m at (x, y), which must lie inside the field.
func bilinear(m *mat.Dense, x, y float64) float64 {
	h, w := m.Dims()
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := utils.ClampInt(x0+1, 0, w-1), utils.ClampInt(y0+1, 0, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	top := m.At(y0, x0)
	if fx != 0 {
		top += fx * (m.At(y0, x1) - top)
	}
	if fy == 0 {
		return top
	}
	bottom := m.At(y1, x0)
	if fx != 0 {
		bottom += fx * (m.At(y1, x1) - bottom)
	}
	return top + fy*(bottom-top)
}
