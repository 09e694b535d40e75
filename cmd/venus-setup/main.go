package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marstek-tools/venus-setup/config"
	"github.com/marstek-tools/venus-setup/internal/logging"
	"github.com/marstek-tools/venus-setup/probe"
	"github.com/marstek-tools/venus-setup/reconcile"
	"github.com/marstek-tools/venus-setup/setup"
	"github.com/marstek-tools/venus-setup/telemetry"
)

func main() {
	storePath := flag.String("store", "entries.yaml", "Path to the entry store file")
	host := flag.String("host", "", "Device host name or IP address")
	port := flag.Int("port", config.DefaultPort, "Modbus TCP port")
	unitID := flag.Int("unit-id", config.DefaultUnitID, "Modbus unit identifier")
	deviceVersion := flag.String("device-version", "", "Device generation (defaults to the first supported version)")
	update := flag.Bool("update", false, "Update polling options of an existing entry instead of registering")
	newUnitID := flag.Int("new-unit-id", 0, "New unit identifier (update mode)")
	high := flag.Int("high", 0, "High-priority polling interval in seconds (update mode)")
	medium := flag.Int("medium", 0, "Medium-priority polling interval in seconds (update mode)")
	low := flag.Int("low", 0, "Low-priority polling interval in seconds (update mode)")
	veryLow := flag.Int("very-low", 0, "Very-low-priority polling interval in seconds (update mode)")
	logLevel := flag.String("log-level", "", "Log level override")
	logFormat := flag.String("log-format", "", "Log format override (json or text)")
	flag.Parse()

	store, err := config.Load(*storePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load entry store")
	}
	if *logLevel != "" {
		store.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		store.Logging.Format = *logFormat
	}

	logger, cleanup, err := logging.Setup(store.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector := telemetry.Noop()
	if store.Telemetry.Enabled {
		prom, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		} else {
			collector = prom
		}
	}

	if *host == "" {
		fmt.Fprintln(os.Stderr, "a -host is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *update {
		submitted := reconcile.Submission{}
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "new-unit-id":
				submitted.UnitID = newUnitID
			case "high":
				submitted.High = high
			case "medium":
				submitted.Medium = medium
			case "low":
				submitted.Low = low
			case "very-low":
				submitted.VeryLow = veryLow
			}
		})
		os.Exit(runUpdate(store, *storePath, *host, *unitID, submitted, logger, collector))
	}

	os.Exit(runRegister(ctx, store, *storePath, setup.Request{
		Host:          *host,
		Port:          *port,
		UnitID:        *unitID,
		DeviceVersion: *deviceVersion,
	}, logger, collector))
}

func runRegister(ctx context.Context, store *config.File, path string, req setup.Request, logger zerolog.Logger, collector telemetry.Collector) int {
	registry := setup.RegistryFunc(func() []config.Entry {
		entries := make([]config.Entry, 0, len(store.Entries))
		for _, rec := range store.Entries {
			entries = append(entries, rec.Entry)
		}
		return entries
	})
	prober := probe.New(store.Probe,
		probe.WithLogger(logger),
		probe.WithTelemetry(collector),
	)
	service := setup.New(registry,
		setup.WithProber(prober),
		setup.WithLogger(logger),
		setup.WithTelemetry(collector),
	)

	entry, outcome := service.CreateEntry(ctx, req)
	if !outcome.OK() {
		logger.Error().Str("outcome", outcome.String()).Str("host", req.Host).Msg("device registration failed")
		return 1
	}

	store.Entries = append(store.Entries, config.EntryRecord{Entry: entry})
	if err := config.Save(path, store); err != nil {
		logger.Error().Err(err).Msg("failed to persist entry store")
		return 1
	}
	logger.Info().Str("host", entry.Host).Int("port", entry.Port).Int("unit_id", entry.UnitID).Msg("device registered")
	return 0
}

func runUpdate(store *config.File, path, host string, unitID int, submitted reconcile.Submission, logger zerolog.Logger, collector telemetry.Collector) int {
	index := -1
	for i, rec := range store.Entries {
		if rec.Entry.Host == host && rec.Entry.UnitID == unitID {
			index = i
			break
		}
	}
	if index < 0 {
		logger.Error().Str("host", host).Int("unit_id", unitID).Msg("no entry for host and unit id")
		return 1
	}

	record := store.Entries[index]
	existing := reconcile.Resolve(record.Entry, record.Options)
	reconciler := reconcile.NewReconciler(&logCoordinator{logger: logger},
		reconcile.WithLogger(logger),
		reconcile.WithTelemetry(collector),
	)
	result := reconciler.Apply(existing, submitted)

	store.Entries[index].Options = result.Profile.Options()
	if err := config.Save(path, store); err != nil {
		logger.Error().Err(err).Msg("failed to persist entry store")
		return 1
	}
	logger.Info().
		Bool("changed", result.Changed()).
		Int("lowest", result.Profile.Intervals.Lowest()).
		Msg("polling options reconciled")
	return 0
}

// logCoordinator stands in for the host platform's polling coordinator when
// the flow runs from the command line.
type logCoordinator struct {
	logger zerolog.Logger
}

func (c *logCoordinator) SetUnitID(unitID int) {
	c.logger.Info().Int("unit_id", unitID).Msg("coordinator would retarget reads")
}

func (c *logCoordinator) SetIntervals(intervals reconcile.Intervals) {
	c.logger.Info().
		Int("high", intervals.High).
		Int("medium", intervals.Medium).
		Int("low", intervals.Low).
		Int("very_low", intervals.VeryLow).
		Msg("coordinator would re-arm timers")
}
