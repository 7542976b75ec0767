package logging

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileAppender writes console formatted log lines to a size rotated file.
type FileAppender struct {
	ConsoleAppender
	logger *lumberjack.Logger
}

// NewFileAppender creates an appender writing to filename. The file is rotated once it grows past
// maxSizeMB megabytes and the two most recent backups are kept, compressed.
func NewFileAppender(filename string, maxSizeMB int) *FileAppender {
	logger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: 2,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender: NewWriterAppender(logger), logger: logger}
}

// Close closes the underlying file.
func (fa *FileAppender) Close() error {
	return fa.logger.Close()
}
