package logging

import (
	"fmt"
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eugenenazirov/codepush-server/internal/config"
)

// New creates a structured JSON logger. When settings.File is set, entries are
// also written to a size-rotated file.
func New(settings config.LogSettings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(settings.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.StacktraceKey = "stacktrace"
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	atom := zap.NewAtomicLevelAt(level)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atom),
	}

	if settings.File != "" {
		writer := &lumberjack.Logger{
			Filename:   settings.File,
			MaxSize:    settings.MaxSizeMB,
			MaxBackups: settings.MaxBackups,
			MaxAge:     settings.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), atom))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// ForEnvironment adjusts log settings for the selected environment.
// Development always logs at debug level.
func ForEnvironment(settings config.LogSettings, env config.Environment) config.LogSettings {
	if env == config.Development {
		settings.Level = zapcore.DebugLevel.String()
	}
	return settings
}
