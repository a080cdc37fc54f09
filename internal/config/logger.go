package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type LoggerConfig struct {
	Level       string `yaml:"level"`
	Destination string `yaml:"destination,omitempty"`
	Mode        string `yaml:"mode,omitempty"`
}

type LoggingConfig struct {
	FileLogger    LoggerConfig `yaml:"file"`
	ConsoleLogger LoggerConfig `yaml:"console"`
}

func (conf *LoggingConfig) validate() error {
	var err error
	for _, l := range []struct {
		name  string
		level string
	}{
		{"console", conf.ConsoleLogger.Level},
		{"file", conf.FileLogger.Level},
	} {
		switch l.level {
		case "none", "normal", "debug":
		default:
			err = multierr.Append(err, fmt.Errorf("config: logging.%s.level must be none, normal or debug, got %q", l.name, l.level))
		}
	}
	switch conf.FileLogger.Mode {
	case "", "append", "overwrite":
	default:
		err = multierr.Append(err, fmt.Errorf("config: logging.file.mode must be append or overwrite, got %q", conf.FileLogger.Mode))
	}
	if conf.FileLogger.Level != "none" && conf.FileLogger.Destination == "" {
		err = multierr.Append(err, errors.New("config: logging.file.destination is required when file logging is enabled"))
	}
	return err
}

// EnableColorOutput reports whether f is a terminal that should get colors.
func EnableColorOutput(f *os.File) bool {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Prepare returns our standard logger: info and debug to stdout, errors to
// stderr, plus an optional file sink.
func (conf *LoggingConfig) Prepare() (*zap.Logger, func() error, error) {
	return conf.prepare(os.Stdout, os.Stderr)
}

func (conf *LoggingConfig) prepare(stdout, stderr *os.File) (*zap.Logger, func() error, error) {
	consoleEncoder := func(f *os.File) zapcore.Encoder {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeCaller = nil
		if EnableColorOutput(f) {
			ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
			ec.TimeKey = zapcore.OmitKey
		} else {
			ec.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		return zapcore.NewConsoleEncoder(ec)
	}

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	var cores []zapcore.Core
	switch conf.ConsoleLogger.Level {
	case "normal", "debug":
		lowest := zapcore.InfoLevel
		if conf.ConsoleLogger.Level == "debug" {
			lowest = zapcore.DebugLevel
		}
		cores = append(cores,
			zapcore.NewCore(consoleEncoder(stdout), zapcore.Lock(stdout),
				zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lowest <= lvl && lvl < zapcore.ErrorLevel
				})),
			zapcore.NewCore(consoleEncoder(stderr), zapcore.Lock(stderr), highPriority),
		)
	}

	closer := func() error { return nil }
	if conf.FileLogger.Level == "normal" || conf.FileLogger.Level == "debug" {
		f, err := openLog(conf.FileLogger.Destination, conf.FileLogger.Mode)
		if err != nil {
			return nil, nil, err
		}
		level := zap.NewAtomicLevelAt(zap.InfoLevel)
		if conf.FileLogger.Level == "debug" {
			level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.Lock(f), level))
		closer = f.Close
	}

	if len(cores) == 0 {
		return zap.NewNop(), closer, nil
	}
	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() error {
		return multierr.Append(syncIgnoringTTY(logger), closer())
	}, nil
}

func openLog(path, mode string) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if mode == "overwrite" {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("config: open log %s: %w", path, err)
	}
	return f, nil
}

// syncIgnoringTTY flushes the logger. Sync on a terminal returns EINVAL or
// ENOTTY on some platforms, which is not worth reporting.
func syncIgnoringTTY(logger *zap.Logger) error {
	err := logger.Sync()
	var pathErr *os.PathError
	if errors.As(err, &pathErr) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
