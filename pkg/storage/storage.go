package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/growatt/pkg/types"
)

// Database persists what the recorder reads from Growatt.
type Database interface {
	// Snapshots
	UpsertPlantSnapshot(ctx context.Context, snap types.PlantSnapshot, version int) error
	GetPlantSnapshots(ctx context.Context, plantID string, start, end time.Time) ([]types.PlantSnapshot, error)
	GetLatestPlantSnapshotTime(ctx context.Context, plantID string) (time.Time, int, error)

	// Fault logs
	UpsertFaultLogPage(ctx context.Context, page types.FaultLogPage) error
	GetFaultLogPages(ctx context.Context, plantID, date string) ([]types.FaultLogPage, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, none)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "none":
			p.Database = Nop{}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// Nop discards writes and has nothing to read. It backs the "none" provider
// for deployments that only export metrics.
type Nop struct{}

var _ Database = Nop{}

func (Nop) UpsertPlantSnapshot(context.Context, types.PlantSnapshot, int) error { return nil }

func (Nop) GetPlantSnapshots(context.Context, string, time.Time, time.Time) ([]types.PlantSnapshot, error) {
	return nil, nil
}

func (Nop) GetLatestPlantSnapshotTime(context.Context, string) (time.Time, int, error) {
	return time.Time{}, 0, nil
}

func (Nop) UpsertFaultLogPage(context.Context, types.FaultLogPage) error { return nil }

func (Nop) GetFaultLogPages(context.Context, string, string) ([]types.FaultLogPage, error) {
	return nil, nil
}

func (Nop) Close() error { return nil }
