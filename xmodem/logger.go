package xmodem

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the diagnostic sink used by the engines. It is separate from the
// event Registry: events are for the host application, Logger is for
// protocol debugging.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// FileLogger appends timestamped lines to a file
type FileLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileLogger opens (or creates) path for appending.
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: file}, nil
}

func (l *FileLogger) write(level, format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %s: %s\n", stamp, level, fmt.Sprintf(format, args...))
}

func (l *FileLogger) Debug(format string, args ...interface{}) { l.write("DEBUG", format, args...) }
func (l *FileLogger) Info(format string, args ...interface{})  { l.write("INFO", format, args...) }
func (l *FileLogger) Error(format string, args ...interface{}) { l.write("ERROR", format, args...) }

// Close closes the underlying file.
func (l *FileLogger) Close() error {
	if l != nil && l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ZerologLogger forwards to a zerolog.Logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log}
}

// NewConsoleLogger builds a human-readable zerolog logger on w, tagged with
// the component name.
func NewConsoleLogger(w io.Writer, component string, level zerolog.Level) *ZerologLogger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	log := zerolog.New(output).Level(level).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: log}
}

func (l *ZerologLogger) Debug(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Info(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Error(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

// FormatBlockLog describes a block for logging.
func FormatBlockLog(direction string, b *Block) string {
	return fmt.Sprintf("%s SOH seq=%d (^%d) sum=0x%02x", direction, b.Sequence(), b.Complement(), b.Checksum())
}

// LoggingReader wraps a reader and logs every read
type LoggingReader struct {
	reader io.Reader
	logger Logger
	name   string
}

func NewLoggingReader(reader io.Reader, logger Logger, name string) *LoggingReader {
	return &LoggingReader{reader: reader, logger: logger, name: name}
}

func (lr *LoggingReader) Read(p []byte) (int, error) {
	n, err := lr.reader.Read(p)
	if n > 0 {
		lr.logger.Debug("%s: read %d bytes: % x", lr.name, n, truncate(p[:n]))
	}
	if err != nil && err != io.EOF {
		lr.logger.Error("%s: read error: %v", lr.name, err)
	}
	return n, err
}

// LoggingWriter wraps a writer and logs every write
type LoggingWriter struct {
	writer io.Writer
	logger Logger
	name   string
}

func NewLoggingWriter(writer io.Writer, logger Logger, name string) *LoggingWriter {
	return &LoggingWriter{writer: writer, logger: logger, name: name}
}

func (lw *LoggingWriter) Write(p []byte) (int, error) {
	n, err := lw.writer.Write(p)
	if n > 0 {
		lw.logger.Debug("%s: wrote %d bytes: % x", lw.name, n, truncate(p[:n]))
	}
	if err != nil {
		lw.logger.Error("%s: write error: %v", lw.name, err)
	}
	return n, err
}

// loggingReadWriter joins a LoggingReader and LoggingWriter.
type loggingReadWriter struct {
	*LoggingReader
	*LoggingWriter
}

// NewLoggingReadWriter wraps both directions of a transport.
func NewLoggingReadWriter(rw io.ReadWriter, logger Logger, name string) io.ReadWriter {
	return loggingReadWriter{
		LoggingReader: NewLoggingReader(rw, logger, name),
		LoggingWriter: NewLoggingWriter(rw, logger, name),
	}
}

func truncate(p []byte) []byte {
	if len(p) > 16 {
		return p[:16]
	}
	return p
}
