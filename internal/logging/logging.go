// Package logging builds the zerolog logger used by the setup flows,
// optionally teeing entries to a Loki endpoint.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/grafana/loki-client-go/loki"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"github.com/marstek-tools/venus-setup/config"
)

// Setup creates a logger according to the provided configuration. The
// returned cleanup flushes and stops any remote log shipping; it is safe to
// call even when no shipping is configured.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	writer, cleanup, err := buildWriter(cfg)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	return logger, cleanup, nil
}

func buildWriter(cfg config.LoggingConfig) (io.Writer, func(), error) {
	var stdout io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "text") {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if !cfg.Loki.Enabled {
		return stdout, func() {}, nil
	}

	shipper, err := newLokiWriter(cfg.Loki)
	if err != nil {
		return nil, nil, err
	}
	return zerolog.MultiLevelWriter(stdout, shipper), shipper.stop, nil
}

type lokiWriter struct {
	client *loki.Client
	labels model.LabelSet
}

func newLokiWriter(cfg config.LokiConfig) (*lokiWriter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("loki url is required")
	}
	lokiCfg, err := loki.NewDefaultConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("prepare loki config: %w", err)
	}
	client, err := loki.New(lokiCfg)
	if err != nil {
		return nil, fmt.Errorf("create loki client: %w", err)
	}

	labels := model.LabelSet{"app": "venus-setup"}
	for k, v := range cfg.Labels {
		labels[model.LabelName(k)] = model.LabelValue(v)
	}
	return &lokiWriter{client: client, labels: labels}, nil
}

func (l *lokiWriter) Write(p []byte) (int, error) {
	entry := strings.TrimSpace(string(p))
	if entry == "" {
		return len(p), nil
	}
	err := l.client.Handle(l.labels, time.Now(), entry)
	return len(p), err
}

func (l *lokiWriter) stop() {
	l.client.Stop()
}
