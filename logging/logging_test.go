package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestLevels(t *testing.T) {
	for _, name := range []string{"debug", "INFO", "Warn", "error"} {
		level, err := LevelFromString(name)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, strings.ToLower(level.String()), test.ShouldEqual, strings.ToLower(name))
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	level := NewAtomicLevelAt(WARN)
	test.That(t, level.Get(), test.ShouldEqual, WARN)
	level.Set(DEBUG)
	test.That(t, level.Get(), test.ShouldEqual, DEBUG)
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("solved", "iterations", 5, "alpha", 1.5)
	logger.Infof("frames %d", 3)

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	entry := logs.All()[0]
	test.That(t, entry.Message, test.ShouldEqual, "solved")
	test.That(t, entry.ContextMap()["iterations"], test.ShouldEqual, int64(5))
	test.That(t, logs.FilterMessage("frames 3").Len(), test.ShouldEqual, 1)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("flow")
	logger.AddAppender(NewWriterAppender(&buf))
	logger.SetLevel(WARN)

	logger.Info("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warnw("visible", "shape", "5x5")
	line := buf.String()
	test.That(t, line, test.ShouldContainSubstring, "WARN")
	test.That(t, line, test.ShouldContainSubstring, "\tflow\t")
	test.That(t, line, test.ShouldContainSubstring, "visible")
	test.That(t, line, test.ShouldContainSubstring, `{"shape":"5x5"}`)
	test.That(t, line, test.ShouldContainSubstring, "logging/logging_test.go:")
}

func TestSublogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("flow")
	logger.AddAppender(NewWriterAppender(&buf))
	sub := logger.Sublogger("solver")
	sub.Error("boom")
	test.That(t, buf.String(), test.ShouldContainSubstring, "flow.solver")
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.log")
	appender := NewFileAppender(path, 1)
	logger := NewBlankLogger("flow")
	logger.AddAppender(appender)
	logger.Infow("wrote", "frames", 2)
	test.That(t, appender.Close(), test.ShouldBeNil)

	//nolint:gosec
	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "wrote")
	test.That(t, string(contents), test.ShouldContainSubstring, `{"frames":2}`)
}

func TestGlobal(t *testing.T) {
	previous := Global()
	defer ReplaceGlobal(previous)

	var buf bytes.Buffer
	logger := NewBlankLogger("cli")
	logger.AddAppender(NewWriterAppender(&buf))
	ReplaceGlobal(logger)
	Global().Sublogger("opticalflow").Debugw("estimated flow", "iterations", 3)
	test.That(t, buf.String(), test.ShouldContainSubstring, "cli.opticalflow")
	test.That(t, buf.String(), test.ShouldContainSubstring, `{"iterations":3}`)
}

func TestUnpairedKey(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("odd", "alpha")
	test.That(t, logs.Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].ContextMap()["alpha"], test.ShouldNotBeNil)
}
