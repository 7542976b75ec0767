package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
)

// Vec2D is a velocity or gradient at a point in polar form.
// Magnitude has values [0, infinity) and direction is [0, 2pi).
type Vec2D struct {
	magnitude float64
	direction float64
}

// NewVec2D converts the cartesian components (u, v) to polar form.
func NewVec2D(u, v float64) Vec2D {
	return Vec2D{magnitude: math.Hypot(u, v), direction: radZeroTo2Pi(math.Atan2(v, u))}
}

func (g Vec2D) Magnitude() float64 {
	return g.magnitude
}

func (g Vec2D) Direction() float64 {
	return g.direction
}

// VectorField2D stores a vector for every (x, y) point of a field.
type VectorField2D struct {
	width  int
	height int

	data         []Vec2D
	maxMagnitude float64
}

func (vf *VectorField2D) kxy(x, y int) int {
	return (y * vf.width) + x
}

func (vf *VectorField2D) Width() int {
	return vf.width
}

func (vf *VectorField2D) Height() int {
	return vf.height
}

// MaxMagnitude is the largest finite magnitude in the field.
func (vf *VectorField2D) MaxMagnitude() float64 {
	return vf.maxMagnitude
}

func (vf *VectorField2D) Get(p image.Point) Vec2D {
	return vf.data[vf.kxy(p.X, p.Y)]
}

func (vf *VectorField2D) GetVec2D(x, y int) Vec2D {
	return vf.data[vf.kxy(x, y)]
}

// VectorField2DFromCartesian builds a field from the horizontal and vertical components of a
// flow or gradient, which must have the same shape.
func VectorField2DFromCartesian(u, v *mat.Dense) (*VectorField2D, error) {
	shape := ShapeOf(u)
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if err := CheckShape("v", v, shape); err != nil {
		return nil, err
	}
	vf := &VectorField2D{
		width:  shape.Width,
		height: shape.Height,
		data:   make([]Vec2D, 0, shape.Size()),
	}
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ { // in mat.Dense, indexing is (row, column)
			vec := NewVec2D(u.At(y, x), v.At(y, x))
			vf.data = append(vf.data, vec)
			if !math.IsNaN(vec.magnitude) && !math.IsInf(vec.magnitude, 0) {
				vf.maxMagnitude = math.Max(vec.magnitude, vf.maxMagnitude)
			}
		}
	}
	return vf, nil
}

// MagnitudeField returns all the magnitudes as a mat.Dense.
func (vf *VectorField2D) MagnitudeField() *mat.Dense {
	h, w := vf.Height(), vf.Width()
	mag := make([]float64, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mag = append(mag, vf.GetVec2D(x, y).Magnitude())
		}
	}
	return mat.NewDense(h, w, mag)
}

// DirectionField returns all the directions as a mat.Dense.
func (vf *VectorField2D) DirectionField() *mat.Dense {
	h, w := vf.Height(), vf.Width()
	dir := make([]float64, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dir = append(dir, vf.GetVec2D(x, y).Direction())
		}
	}
	return mat.NewDense(h, w, dir)
}

// MagnitudePicture draws the magnitudes scaled so the largest one is white.
func (vf *VectorField2D) MagnitudePicture() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, vf.Width(), vf.Height()))
	if vf.maxMagnitude == 0 {
		return img
	}
	for x := 0; x < vf.Width(); x++ {
		for y := 0; y < vf.Height(); y++ {
			g := vf.GetVec2D(x, y)
			if math.IsNaN(g.Magnitude()) {
				continue
			}
			val := math.Min(g.Magnitude()/vf.maxMagnitude, 1) * 255
			img.SetGray(x, y, color.Gray{uint8(val)})
		}
	}
	return img
}

// DirectionPicture draws the direction as hue and the relative magnitude as value. Points that
// do not move stay black.
func (vf *VectorField2D) DirectionPicture() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, vf.Width(), vf.Height()))
	for x := 0; x < vf.Width(); x++ {
		for y := 0; y < vf.Height(); y++ {
			g := vf.GetVec2D(x, y)
			if !(g.Magnitude() > 0) || vf.maxMagnitude == 0 {
				continue
			}
			deg := g.Direction() * (180. / math.Pi)
			value := math.Min(g.Magnitude()/vf.maxMagnitude, 1)
			r, gr, b := colorful.Hsv(deg, 1.0, value).RGB255()
			img.SetRGBA(x, y, color.RGBA{r, gr, b, 255})
		}
	}
	return img
}

// changes the radians from between -pi,pi to 0,2pi
func radZeroTo2Pi(rad float64) float64 {
	if rad < 0. {
		rad += 2. * math.Pi
	}
	return rad
}
