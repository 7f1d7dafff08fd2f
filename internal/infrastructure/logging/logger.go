package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/rover-core/internal/infrastructure/config"
)

// serviceName is attached to every record as "service".
const serviceName = "rover"

// Logger is the structured logger shared by every subsystem of the robot.
// It embeds *slog.Logger, so Debug/Info/Warn/Error come straight from
// slog. Safe for concurrent use.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New builds the logger described by cfg. Records carry the service name
// and the build version.
//
// With output "file" records go to a size-rotated file; the caller must
// Close the returned logger to release it.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, closer := openOutput(cfg)
	l := NewWithWriter(w, cfg, version)
	l.closer = closer
	return l
}

func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		f := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		return f, f
	}
	return os.Stdout, nil
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(h.WithAttrs([]slog.Attr{
			slog.String("service", serviceName),
			slog.String("version", version),
		})),
	}
}

// parseLevel maps debug, info, warn(ing) and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every record. Children
// share the parent's output.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closer: l.closer}
}

// Component returns a child logger tagged component=name.
//
//	mcuLog := logger.Component("mcu")
//	mcuLog.Warn("ping timed out", "attempt", 3)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Close releases the log file when output is "file". Only the root logger
// should be closed.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is the bootstrap logger used until the config has been read:
// JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
