package main

import (
	// stdlib
	"context"
	"fmt"
	"log/slog"
	"time"

	// internal
	"github.com/Robogera/headcount/pkg/config"
	"github.com/Robogera/headcount/pkg/report"
)

func openSinks(ctx context.Context, logger *slog.Logger, cfg *config.ConfigFile) (*report.Multi, error) {
	var sinks []report.Sink
	fail := func(err error) (*report.Multi, error) {
		report.NewMulti(sinks...).Close()
		return nil, fmt.Errorf("%w: %w", ERR_BAD_SINK, err)
	}

	if cfg.Report.CSV.Path != "" {
		csv, err := report.NewCSVFile(cfg.Report.CSV.Path, cfg.Report.CSV.Attributes)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, csv)
		logger.Info("CSV log opened", "path", cfg.Report.CSV.Path)
	}

	if cfg.Report.SQLite.Path != "" {
		db, err := report.NewSQLite(ctx, logger, cfg.Report.SQLite.Path, cfg.Input.Path)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, db)
	}

	if cfg.Report.MQTT.Enabled {
		broker, err := report.DialBroker(
			ctx,
			cfg.Report.MQTT.Address,
			cfg.Report.MQTT.ClientID,
			time.Second*time.Duration(cfg.Report.MQTT.TimeoutSec))
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, report.NewMQTT(broker, cfg.Report.MQTT.Topic, cfg.Report.MQTT.ClientID))
		logger.Info("MQTT connected", "address", cfg.Report.MQTT.Address, "topic", cfg.Report.MQTT.Topic)
	}

	return report.NewMulti(sinks...), nil
}

// Writes every record to the configured sinks. Drains in_chan until the
// processor closes it, even after cancellation, so the final record
// always lands.
func recorder(
	ctx context.Context,
	parent_logger *slog.Logger,
	cfg *config.ConfigFile,
	in_chan <-chan report.Record,
) error {
	logger := parent_logger.With("coroutine", "recorder")

	sinks, err := openSinks(ctx, logger, cfg)
	if err != nil {
		logger.Error("Can't open report sinks", "error", err)
		for range in_chan {
		}
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("Can't close report sinks", "error", err)
		}
	}()

	write_ctx := context.WithoutCancel(ctx)
	var failures uint
	for record := range in_chan {
		if err := sinks.Write(write_ctx, record); err != nil {
			failures++
			logger.Warn("Can't write record", "frame", record.Frame, "error", err, "failures", failures)
		}
		if record.Final {
			logger.Info("Final record written", "frame", record.Frame, "sinks", sinks.Len())
		}
	}
	logger.Info("Stopped", "failures", failures)
	return nil
}
