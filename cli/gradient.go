package cli

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/optflow/rimage"
)

// GradientAction evaluates the derivatives of a preset over the frames given as arguments and
// writes ex, ey, et and the spatial gradient magnitude and direction.
func GradientAction(c *cli.Context) (err error) {
	logger, closeLog := newLogger(c)
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	preset, err := rimage.ParsePreset(c.String(flagPreset))
	if err != nil {
		return err
	}
	paths := c.Args().Slice()
	if len(paths) != preset.Taps() {
		return errors.Wrapf(rimage.ErrShapeMismatch,
			"preset %s needs %d frames, got %d", preset, preset.Taps(), len(paths))
	}
	out, err := newOutputWriter(c, logger)
	if err != nil {
		return err
	}

	ctx, span := trace.StartSpan(c.Context, "optflow::cli::GradientAction")
	defer span.End()

	frames, err := readFrames(ctx, paths, c.Uint(flagResize), c.Float64(flagBlur), logger)
	if err != nil {
		return err
	}
	gradient, err := newGradient(c, preset, rimage.ShapeOf(frames[0]))
	if err != nil {
		return err
	}
	grads, err := gradient.Evaluate(nil, frames...)
	if err != nil {
		return err
	}
	spatial, err := rimage.VectorField2DFromCartesian(grads.Ex, grads.Ey)
	if err != nil {
		return err
	}
	logger.Debugw("evaluated gradients", "preset", preset.String(), "max", spatial.MaxMagnitude())

	return multierr.Combine(
		out.write("ex", rimage.FieldToGray(grads.Ex)),
		out.write("ey", rimage.FieldToGray(grads.Ey)),
		out.write("et", rimage.FieldToGray(grads.Et)),
		out.write("gradient_magnitude", spatial.MagnitudePicture()),
		out.write("gradient_direction", spatial.DirectionPicture()),
	)
}

// newGradient builds the estimator of preset, taking the kernels of the user configured presets
// from the flags.
func newGradient(c *cli.Context, preset rimage.Preset, shape rimage.Shape) (*rimage.SpatioTemporalGradient, error) {
	if preset.Fixed() {
		return rimage.NewGradient(preset, shape)
	}
	diff := rimage.Kernel1D(c.Float64Slice(flagDifference))
	avg := rimage.Kernel1D(c.Float64Slice(flagAverage))
	if preset == rimage.PresetCentral {
		return rimage.NewCentralGradient(diff, avg, shape)
	}
	return rimage.NewForwardGradient(diff, avg, shape)
}
