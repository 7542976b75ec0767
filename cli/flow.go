package cli

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/optflow/logging"
	"go.viam.com/optflow/rimage"
	"go.viam.com/optflow/utils"
	"go.viam.com/optflow/vision/opticalflow"
)

// logFileSizeMB is the size after which the log file is rotated.
const logFileSizeMB = 10

// newLogger builds the logger of a command. It writes to the app's error writer and, when
// requested, to a rotated log file that the returned func closes.
func newLogger(c *cli.Context) (logging.Logger, func() error) {
	logger := logging.NewBlankLogger("optflow")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if !c.Bool(flagDebug) {
		logger.SetLevel(logging.INFO)
	}
	logging.ReplaceGlobal(logger)

	path := c.Path(flagLogFile)
	if path == "" {
		return logger, func() error { return nil }
	}
	appender := logging.NewFileAppender(path, logFileSizeMB)
	logger.AddAppender(appender)
	return logger, appender.Close
}

// flowConfig loads the config file if one is given and applies the flags set on top of it.
func flowConfig(c *cli.Context) (*opticalflow.Config, error) {
	cfg := opticalflow.DefaultConfig()
	if path := c.Path(flagConfig); path != "" {
		var err error
		if cfg, err = opticalflow.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagMethod) {
		cfg.Method = c.String(flagMethod)
	}
	if c.IsSet(flagAlpha) {
		cfg.Alpha = c.Float64(flagAlpha)
	}
	if c.IsSet(flagIterations) {
		cfg.Iterations = c.Int(flagIterations)
	}
	if c.IsSet(flagBlur) {
		cfg.BlurSigma = c.Float64(flagBlur)
	}
	if c.IsSet(flagResize) {
		cfg.ResizeWidth = c.Uint(flagResize)
	}
	if err := cfg.Validate("flags"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFrames decodes every path concurrently into a luminance field, resized and blurred as
// requested. Frames keep the order of paths.
func readFrames(
	ctx context.Context,
	paths []string,
	resizeWidth uint,
	blurSigma float64,
	logger logging.Logger,
) ([]*mat.Dense, error) {
	ctx, span := trace.StartSpan(ctx, "optflow::cli::readFrames")
	defer span.End()

	frames := make([]*mat.Dense, len(paths))
	fs := make([]utils.SimpleFunc, 0, len(paths))
	for i, path := range paths {
		fs = append(fs, func(ctx context.Context) error {
			field, err := rimage.ReadGrayField(path, 0)
			if err != nil {
				return err
			}
			if resizeWidth > 0 {
				if field, err = rimage.ResizeField(field, resizeWidth); err != nil {
					return err
				}
			}
			if blurSigma > 0 {
				if field, err = rimage.SmoothField(field, blurSigma); err != nil {
					return err
				}
			}
			frames[i] = field
			return nil
		})
	}
	elapsed, err := utils.RunInParallel(ctx, fs)
	if err != nil {
		return nil, err
	}
	shape := rimage.ShapeOf(frames[0])
	for i, f := range frames {
		if err := rimage.CheckShape(paths[i], f, shape); err != nil {
			return nil, err
		}
	}
	logger.Debugw("read frames", "count", len(frames), "shape", shape.String(), "duration", elapsed)
	return frames, nil
}

// outputWriter writes named images into a directory in a single format.
type outputWriter struct {
	dir    string
	format string
	logger logging.Logger
}

func newOutputWriter(c *cli.Context, logger logging.Logger) (*outputWriter, error) {
	dir := c.Path(flagOutput)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(strings.ToLower(c.String(flagFormat)), ".")
	return &outputWriter{dir: dir, format: format, logger: logger}, nil
}

func (ow *outputWriter) write(name string, img image.Image) error {
	path := filepath.Join(ow.dir, fmt.Sprintf("%s.%s", name, ow.format))
	if err := rimage.WriteImageToFile(path, img); err != nil {
		return err
	}
	ow.logger.Infow("wrote image", "path", path)
	return nil
}

// FlowAction estimates the flow over the frames given as arguments and writes its pictures,
// statistics and optionally a convergence plot.
func FlowAction(c *cli.Context) (err error) {
	logger, closeLog := newLogger(c)
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	cfg, err := flowConfig(c)
	if err != nil {
		return err
	}
	paths := c.Args().Slice()
	if len(paths) != cfg.Frames() {
		return errors.Wrapf(rimage.ErrShapeMismatch,
			"method %q needs %d frames, got %d", cfg.Method, cfg.Frames(), len(paths))
	}
	out, err := newOutputWriter(c, logger)
	if err != nil {
		return err
	}

	ctx, span := trace.StartSpan(c.Context, "optflow::cli::FlowAction")
	defer span.End()

	frames, err := readFrames(ctx, paths, cfg.ResizeWidth, cfg.BlurSigma, logger)
	if err != nil {
		return err
	}
	shape := rimage.ShapeOf(frames[0])
	solver, err := cfg.NewSolver(shape, logger)
	if err != nil {
		return err
	}

	tracePath := c.Path(flagTrace)
	if tracePath != "" && cfg.Iterations == 0 {
		logger.Warnw("skipping convergence trace, no iterations to record", "path", tracePath)
		tracePath = ""
	}

	var flow *opticalflow.FlowField
	if tracePath != "" {
		flow = opticalflow.NewFlowField(shape)
		history, err := opticalflow.TraceConvergence(solver, cfg.Alpha, cfg.Iterations, frames, flow)
		if err != nil {
			return err
		}
		if err := opticalflow.PlotConvergence(history, tracePath); err != nil {
			return err
		}
		last := history[len(history)-1]
		logger.Infow("traced convergence", "path", tracePath, "energy", last.Energy)
	} else {
		_, estimateSpan := trace.StartSpan(ctx, "optflow::cli::Flow")
		flow, err = solver.Flow(cfg.Alpha, cfg.Iterations, frames)
		estimateSpan.End()
		if err != nil {
			return err
		}
	}

	return writeFlowOutputs(c, out, frames, flow)
}

// writeFlowOutputs draws the flow, summarizes it and the warp error of the last frame pair.
func writeFlowOutputs(c *cli.Context, out *outputWriter, frames []*mat.Dense, flow *opticalflow.FlowField) error {
	field, err := rimage.VectorField2DFromCartesian(flow.U, flow.V)
	if err != nil {
		return err
	}
	arrows, err := rimage.DrawFlowArrows(
		rimage.FieldToGray(frames[0]), flow.U, flow.V, c.Int(flagArrowStep), c.Float64(flagArrowScale))
	if err != nil {
		return err
	}
	if err := multierr.Combine(
		out.write("magnitude", field.MagnitudePicture()),
		out.write("direction", field.DirectionPicture()),
		out.write("arrows", arrows),
	); err != nil {
		return err
	}

	flowErr, err := opticalflow.FlowError(frames[len(frames)-2], frames[len(frames)-1], flow.U, flow.V)
	if err != nil {
		return err
	}
	names := []string{"u", "v", "magnitude", "flow error"}
	fields := []*mat.Dense{flow.U, flow.V, field.MagnitudeField(), flowErr}
	summaries := make([]opticalflow.FieldSummary, 0, len(fields))
	for i, m := range fields {
		s, err := opticalflow.SummarizeField(m)
		if err != nil {
			return errors.Wrapf(err, "cannot summarize %s", names[i])
		}
		summaries = append(summaries, s)
	}
	printf(c.App.Writer, "%s", opticalflow.SummaryTable(names, summaries))

	if bins := c.Int(flagBins); bins > 0 {
		printf(c.App.Writer, "flow error histogram")
		return opticalflow.FprintHistogram(c.App.Writer, flowErr, bins, 40)
	}
	return nil
}
