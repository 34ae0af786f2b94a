package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/grafana/loki-client-go/loki"
	slogloki "github.com/samber/slog-loki/v3"

	"payment-service/internal/config"
	"payment-service/internal/logcontext"
)

const serviceName = "payment-service"

func GetLogger(cfg config.Logs) *slog.Logger {
	level := parseLevel(cfg.Level)
	if cfg.URL == "" {
		return localLogger(level)
	}

	return remoteLogger(cfg.URL, level)
}

func localLogger(level slog.Level) *slog.Logger {
	return slog.New(&ContextHandler{Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})})
}

func remoteLogger(url string, level slog.Level) *slog.Logger {
	lokiConfig, err := loki.NewDefaultConfig(url)
	if err != nil {
		return localLogger(level).With("lokiError", err.Error())
	}
	client, err := loki.New(lokiConfig)
	if err != nil {
		return localLogger(level).With("lokiError", err.Error())
	}

	return slog.New(slogloki.Option{
		Level:  level,
		Client: client,
		AttrFromContext: []func(ctx context.Context) []slog.Attr{
			logcontext.Attrs,
		},
	}.NewLokiHandler()).With("service", serviceName)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
