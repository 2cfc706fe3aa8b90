package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/linemk/farm-shop/internal/lib/logger/handlers/slogpretty"
)

// switching logger
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// ServiceName добавляется к каждой записи, чтобы логи сервиса отделялись от соседей в общем сборщике
const ServiceName = "farm-shop"

// SetupLogger инициализирует логгер в зависимости от переданного окружения:
// local пишет цветной текст, dev JSON с уровнем debug и местом вызова, prod JSON с уровнем info.
func SetupLogger(env string) *slog.Logger {
	return newLogger(env, os.Stdout)
}

func newLogger(env string, out io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case EnvLocal:
		return setupPrettySlog(out)
	case EnvDev:
		log = slog.New(
			slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true}),
		)
	case EnvProd:
		log = slog.New(
			slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
		log.Warn("unknown env, using prod logging", slog.String("env", env))
	}

	return log.With(slog.String("service", ServiceName))
}

// в локальном выводе имя сервиса только мешает
func setupPrettySlog(out io.Writer) *slog.Logger {
	color.NoColor = false

	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(out)
	return slog.New(handler)
}
