package cli

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/optflow/rimage"
)

// writeFrames renders n frames of a smooth texture moving right by shift pixels per frame.
func writeFrames(t *testing.T, dir string, n int, shift float64) []string {
	t.Helper()
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		img := image.NewGray(image.Rect(0, 0, 40, 32))
		for y := 0; y < 32; y++ {
			for x := 0; x < 40; x++ {
				fx := float64(x) - float64(i)*shift
				v := 128 + 50*math.Sin(0.3*fx+0.2*float64(y)) + 40*math.Cos(0.25*float64(y)-0.1*fx)
				img.SetGray(x, y, color.Gray{uint8(v)})
			}
		}
		path := filepath.Join(dir, fmt.Sprintf("frame%d.png", i))
		test.That(t, rimage.WriteImageToFile(path, img), test.ShouldBeNil)
		paths = append(paths, path)
	}
	return paths
}

func fileExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
}

func TestFlowCommand(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, 3, 0.5)
	outDir := filepath.Join(dir, "out")
	tracePath := filepath.Join(dir, "trace.png")
	logPath := filepath.Join(dir, "optflow.log")

	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	args := append([]string{
		"optflow", "--log-file", logPath, "flow",
		"--iterations", "15", "--output", outDir, "--trace", tracePath, "--bins", "5",
	}, frames...)
	test.That(t, app.Run(args), test.ShouldBeNil)

	for _, name := range []string{"magnitude", "direction", "arrows"} {
		fileExists(t, filepath.Join(outDir, name+".png"))
	}
	fileExists(t, tracePath)
	fileExists(t, logPath)
	test.That(t, out.String(), test.ShouldContainSubstring, "flow error")
	test.That(t, out.String(), test.ShouldContainSubstring, "histogram")
	test.That(t, errOut.String(), test.ShouldContainSubstring, "wrote image")
}

func TestFlowCommandZeroIterationsTrace(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, 3, 0.5)
	tracePath := filepath.Join(dir, "trace.png")

	var out, errOut bytes.Buffer
	args := append([]string{
		"optflow", "flow", "--iterations", "0", "--output", dir, "--trace", tracePath,
	}, frames...)
	test.That(t, NewApp(&out, &errOut).Run(args), test.ShouldBeNil)

	for _, name := range []string{"magnitude", "direction", "arrows"} {
		fileExists(t, filepath.Join(dir, name+".png"))
	}
	_, err := os.Stat(tracePath)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
	test.That(t, errOut.String(), test.ShouldContainSubstring, "skipping convergence trace")
	test.That(t, out.String(), test.ShouldContainSubstring, "flow error")
}

func TestFlowCommandConfig(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, 2, 1)
	configPath := filepath.Join(dir, "config.json")
	config := `{"method": "vanilla", "alpha": 5, "iterations": 10, "resize_width": 20}`
	test.That(t, os.WriteFile(configPath, []byte(config), 0o600), test.ShouldBeNil)

	var out, errOut bytes.Buffer
	args := append([]string{
		"optflow", "--config", configPath, "flow", "--output", dir, "--format", "qoi", "--bins", "0",
	}, frames...)
	test.That(t, NewApp(&out, &errOut).Run(args), test.ShouldBeNil)

	img, err := rimage.ReadImageFromFile(filepath.Join(dir, "magnitude.qoi"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 20)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 16)
	test.That(t, out.String(), test.ShouldNotContainSubstring, "histogram")

	// the flag overrides the config, and sobel needs three frames
	args = append([]string{
		"optflow", "--config", configPath, "flow", "--method", "sobel", "--output", dir,
	}, frames...)
	err = NewApp(&out, &errOut).Run(args)
	test.That(t, errors.Is(err, rimage.ErrShapeMismatch), test.ShouldBeTrue)

	args = append([]string{"optflow", "flow", "--alpha", "-1", "--output", dir}, frames...)
	err = NewApp(&out, &errOut).Run(args)
	test.That(t, errors.Is(err, rimage.ErrConfiguration), test.ShouldBeTrue)
}

func TestGradientCommand(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, 2, 1)

	var out, errOut bytes.Buffer
	args := append([]string{
		"optflow", "gradient", "--preset", "forward", "--difference", "1", "--difference", "-1",
		"--average", "0.5", "--average", "0.5",
		"--blur", "1", "--output", dir, "--format", "ppm",
	}, frames...)
	test.That(t, NewApp(&out, &errOut).Run(args), test.ShouldBeNil)
	for _, name := range []string{"ex", "ey", "et", "gradient_magnitude", "gradient_direction"} {
		fileExists(t, filepath.Join(dir, name+".ppm"))
	}

	args = append([]string{"optflow", "gradient", "--preset", "hornschunck", "--output", dir}, frames...)
	test.That(t, NewApp(&out, &errOut).Run(args), test.ShouldBeNil)

	args = append([]string{"optflow", "gradient", "--output", dir}, frames...)
	err := NewApp(&out, &errOut).Run(args)
	test.That(t, errors.Is(err, rimage.ErrShapeMismatch), test.ShouldBeTrue)

	// the forward preset has no kernels of its own
	args = append([]string{"optflow", "gradient", "--preset", "forward", "--output", dir}, frames...)
	err = NewApp(&out, &errOut).Run(args)
	test.That(t, errors.Is(err, rimage.ErrConfiguration), test.ShouldBeTrue)

	args = append([]string{"optflow", "gradient", "--preset", "laplace", "--output", dir}, frames...)
	err = NewApp(&out, &errOut).Run(args)
	test.That(t, errors.Is(err, rimage.ErrConfiguration), test.ShouldBeTrue)
}
