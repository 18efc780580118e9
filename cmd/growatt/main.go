// Command growatt logs into the Growatt web API once and prints what the
// account can see as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/raterudder/growatt/pkg/growatt"
	"github.com/raterudder/growatt/pkg/log"
)

type plantReport struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Data   any             `json:"data,omitempty"`
	Mix    json.RawMessage `json:"mix,omitempty"`
	Faults json.RawMessage `json:"faults,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func main() {
	username := lflag.String("username", "", "Growatt account name (defaults to GROWATT_USERNAME)")
	password := lflag.String("password", "", "Growatt account password (defaults to GROWATT_PASSWORD)")
	baseURL := lflag.String("base-url", "", "Growatt server (defaults to GROWATT_BASE_URL)")
	alternate := lflag.Bool("alternate", false, "use the alternate Growatt server")
	timeout := lflag.Duration("timeout", 0, "per request timeout (defaults to GROWATT_TIMEOUT)")
	faults := lflag.Bool("faults", false, "include the fault log of every plant")
	mix := lflag.Bool("mix", false, "include the storage (mix) device ids of every plant")
	date := lflag.String("date", "", "fault log day as YYYY-MM-DD, defaults to today")
	lflag.Configure()

	var level slog.Level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
	log.SetDefaultLogLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := growatt.ConfigFromEnv()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read environment", slog.Any("error", err))
		os.Exit(1)
	}
	if *username != "" {
		cfg.Username = *username
	}
	if *password != "" {
		cfg.Password = *password
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *alternate {
		cfg.BaseURL = growatt.AlternateBaseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	client := growatt.NewFromConfig(cfg)

	ok, err := client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to log in", slog.Any("error", err))
		os.Exit(1)
	}
	if !ok {
		log.Ctx(ctx).ErrorContext(ctx, "growatt rejected the credentials", slog.String("username", cfg.Username))
		os.Exit(1)
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if ok, _ := client.Logout(logoutCtx); !ok {
			log.Ctx(ctx).WarnContext(ctx, "failed to log out")
		}
	}()

	plants, err := client.GetPlants(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list plants", slog.Any("error", err))
		return
	}

	reports := make([]plantReport, 0, len(plants))
	for _, p := range plants {
		report := plantReport{ID: string(p.ID), Name: p.Name}
		pctx := log.WithAttrs(ctx, slog.String("plantID", report.ID))

		data, err := client.GetPlant(pctx, report.ID)
		if err != nil {
			log.Ctx(pctx).WarnContext(pctx, "failed to get plant", slog.Any("error", err))
			report.Error = err.Error()
			reports = append(reports, report)
			continue
		}
		report.Data = data

		if *mix {
			if report.Mix, err = client.GetMixIDs(pctx, report.ID); err != nil {
				log.Ctx(pctx).WarnContext(pctx, "failed to get mix ids", slog.Any("error", err))
			}
		}
		if *faults {
			report.Faults, err = client.GetFaultLogs(pctx, growatt.FaultLogQuery{
				PlantID: report.ID,
				Date:    *date,
				PageNum: 1,
			})
			if err != nil {
				log.Ctx(pctx).WarnContext(pctx, "failed to get fault logs", slog.Any("error", err))
			}
		}
		reports = append(reports, report)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to write output", slog.Any("error", err))
	}
}
