package rimage

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"
	"gonum.org/v1/gonum/mat"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// arrowHeadAngle is the angle between the shaft and each side of an arrow head.
const arrowHeadAngle = math.Pi / 7

// DrawArrow draws a line from (x0, y0) to (x1, y1) ending in an arrow head.
func DrawArrow(dc *gg.Context, x0, y0, x1, y1 float64, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawLine(x0, y0, x1, y1)
	dc.Stroke()

	length := math.Hypot(x1-x0, y1-y0)
	if length == 0 {
		return
	}
	head := math.Min(length/3, 6)
	back := math.Atan2(y0-y1, x0-x1)
	for _, side := range []float64{-arrowHeadAngle, arrowHeadAngle} {
		dc.DrawLine(x1, y1, x1+head*math.Cos(back+side), y1+head*math.Sin(back+side))
		dc.Stroke()
	}
}

// DrawFlowArrows overlays the flow (u, v) on background as arrows sampled every step pixels, each
// scaled by scale and coloured by its direction. Background and flow must have the same size.
func DrawFlowArrows(background image.Image, u, v *mat.Dense, step int, scale float64) (image.Image, error) {
	if step <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "arrow step must be positive, got %d", step)
	}
	bounds := background.Bounds()
	shape := Shape{Height: bounds.Dy(), Width: bounds.Dx()}
	if err := CheckShape("u", u, shape); err != nil {
		return nil, err
	}
	if err := CheckShape("v", v, shape); err != nil {
		return nil, err
	}

	dc := gg.NewContextForImage(background)
	for y := step / 2; y < shape.Height; y += step {
		for x := step / 2; x < shape.Width; x += step {
			vec := NewVec2D(u.At(y, x), v.At(y, x))
			if !(vec.Magnitude() > 1e-3) || math.IsInf(vec.Magnitude(), 0) {
				continue
			}
			x0, y0 := float64(x)+0.5, float64(y)+0.5
			x1, y1 := x0+scale*u.At(y, x), y0+scale*v.At(y, x)
			c := colorful.Hsv(vec.Direction()*180/math.Pi, 1, 1)
			DrawArrow(dc, x0, y0, x1, y1, c, 1)
		}
	}
	DrawString(dc, fmt.Sprintf("arrows x%.1f", scale), image.Point{4, 4}, color.White, 12)
	return dc.Image(), nil
}
