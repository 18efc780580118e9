// Package recorder copies plant readings and fault logs from Growatt into
// storage.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/growatt/pkg/growatt"
	"github.com/raterudder/growatt/pkg/log"
	"github.com/raterudder/growatt/pkg/storage"
	"github.com/raterudder/growatt/pkg/types"
)

// Source is the part of *growatt.Client the recorder reads from.
type Source interface {
	GetPlants(ctx context.Context) (types.PlantList, error)
	GetPlant(ctx context.Context, plantID string) (types.PlantData, error)
	GetFaultLogs(ctx context.Context, q growatt.FaultLogQuery) (json.RawMessage, error)
}

var _ Source = (*growatt.Client)(nil)

// DefaultMinInterval is how old a plant's latest snapshot must be before Sync
// records another one.
const DefaultMinInterval = time.Minute

// Recorder stores one snapshot per plant and the first fault log page of the
// day every time Sync runs.
type Recorder struct {
	source      Source
	db          storage.Database
	now         func() time.Time
	minInterval time.Duration
}

// Result counts what a Sync stored.
type Result struct {
	Plants           int `json:"plants"`
	Snapshots        int `json:"snapshots"`
	SkippedSnapshots int `json:"skippedSnapshots,omitempty"`
	FaultLogPages    int `json:"faultLogPages"`
}

func New(source Source, db storage.Database) *Recorder {
	return &Recorder{
		source:      source,
		db:          db,
		now:         time.Now,
		minInterval: DefaultMinInterval,
	}
}

// Sync records every plant. date selects the fault log day (YYYY-MM-DD) and
// defaults to today. A failing plant does not stop the others; all failures
// are returned joined.
func (r *Recorder) Sync(ctx context.Context, date string) (Result, error) {
	now := r.now().Truncate(time.Second)
	if date == "" {
		date = now.Format(time.DateOnly)
	}

	var res Result
	plants, err := r.source.GetPlants(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list plants: %w", err)
	}
	res.Plants = len(plants)
	log.Ctx(ctx).DebugContext(ctx, "recording plants", slog.Int("plants", len(plants)), slog.String("date", date))

	var errs []error
	for _, plant := range plants {
		pctx := log.WithAttrs(ctx, slog.String("plantID", string(plant.ID)))

		if r.recentlyRecorded(pctx, plant, now) {
			res.SkippedSnapshots++
		} else if err := r.recordSnapshot(pctx, plant, now); err != nil {
			log.Ctx(pctx).ErrorContext(pctx, "failed to record plant snapshot", slog.Any("error", err))
			errs = append(errs, fmt.Errorf("plant %s snapshot: %w", plant.ID, err))
		} else {
			res.Snapshots++
		}

		if err := r.recordFaultLogs(pctx, plant, date, now); err != nil {
			log.Ctx(pctx).ErrorContext(pctx, "failed to record fault logs", slog.Any("error", err))
			errs = append(errs, fmt.Errorf("plant %s fault logs: %w", plant.ID, err))
		} else {
			res.FaultLogPages++
		}
	}
	return res, errors.Join(errs...)
}

// recentlyRecorded reports whether the plant already has a current-version
// snapshot younger than minInterval. Lookup failures are logged and treated
// as no snapshot.
func (r *Recorder) recentlyRecorded(ctx context.Context, plant types.Plant, now time.Time) bool {
	latest, version, err := r.db.GetLatestPlantSnapshotTime(ctx, string(plant.ID))
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get latest plant snapshot time", slog.Any("error", err))
		return false
	}
	if latest.IsZero() || version < types.CurrentSnapshotVersion {
		return false
	}
	if now.Sub(latest) < r.minInterval {
		log.Ctx(ctx).DebugContext(ctx, "skipping recent plant snapshot", slog.Time("latest", latest))
		return true
	}
	return false
}

func (r *Recorder) recordSnapshot(ctx context.Context, plant types.Plant, now time.Time) error {
	data, err := r.source.GetPlant(ctx, string(plant.ID))
	if err != nil {
		return err
	}
	snap := types.NewPlantSnapshot(plant, data, now)
	if err := r.db.UpsertPlantSnapshot(ctx, snap, types.CurrentSnapshotVersion); err != nil {
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "recorded plant snapshot", slog.Float64("currentPowerW", snap.CurrentPowerW))
	return nil
}

func (r *Recorder) recordFaultLogs(ctx context.Context, plant types.Plant, date string, now time.Time) error {
	raw, err := r.source.GetFaultLogs(ctx, growatt.FaultLogQuery{
		PlantID: string(plant.ID),
		Date:    date,
		PageNum: 1,
	})
	if err != nil {
		return err
	}
	return r.db.UpsertFaultLogPage(ctx, types.FaultLogPage{
		PlantID:   string(plant.ID),
		Date:      date,
		Page:      1,
		FetchedAt: now,
		Data:      raw,
	})
}
