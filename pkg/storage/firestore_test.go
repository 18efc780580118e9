package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/growatt/pkg/types"
)

func TestFirestoreProvider(t *testing.T) {
	// needs a running emulator, e.g. gcloud emulators firestore start --host-port=127.0.0.1:8087
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: "test-project-id",
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
	})

	t.Run("EmptyPlantID", func(t *testing.T) {
		_, err := f.GetPlantSnapshots(ctx, "", time.Now(), time.Now())
		assert.ErrorContains(t, err, "plantID cannot be empty")
	})

	t.Run("Snapshots", func(t *testing.T) {
		// RFC3339 document IDs have second precision
		now := time.Now().Truncate(time.Second).UTC()
		s1 := types.PlantSnapshot{PlantID: "plant-1", PlantName: "Roof", Timestamp: now.Add(-time.Hour), CurrentPowerW: 1200}
		s2 := types.PlantSnapshot{PlantID: "plant-1", PlantName: "Roof", Timestamp: now, CurrentPowerW: 1500}
		old := types.PlantSnapshot{PlantID: "plant-1", PlantName: "Roof", Timestamp: now.Add(-48 * time.Hour), CurrentPowerW: 10}

		require.NoError(t, f.UpsertPlantSnapshot(ctx, s1, types.CurrentSnapshotVersion))
		require.NoError(t, f.UpsertPlantSnapshot(ctx, s2, types.CurrentSnapshotVersion))
		require.NoError(t, f.UpsertPlantSnapshot(ctx, old, 0))

		snaps, err := f.GetPlantSnapshots(ctx, "plant-1", now.Add(-2*time.Hour), now.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.True(t, snaps[0].Timestamp.Equal(s1.Timestamp))
		assert.Equal(t, 1200.0, snaps[0].CurrentPowerW)
		assert.True(t, snaps[1].Timestamp.Equal(s2.Timestamp))

		t.Run("UpsertOverwrite", func(t *testing.T) {
			updated := s2
			updated.CurrentPowerW = 1600
			require.NoError(t, f.UpsertPlantSnapshot(ctx, updated, types.CurrentSnapshotVersion))

			snaps, err := f.GetPlantSnapshots(ctx, "plant-1", now, now.Add(time.Minute))
			require.NoError(t, err)
			require.Len(t, snaps, 1)
			assert.Equal(t, 1600.0, snaps[0].CurrentPowerW)
		})

		t.Run("GetLatestPlantSnapshotTime", func(t *testing.T) {
			latest, version, err := f.GetLatestPlantSnapshotTime(ctx, "plant-1")
			require.NoError(t, err)
			assert.True(t, latest.Equal(now))
			assert.Equal(t, types.CurrentSnapshotVersion, version)

			latest, version, err = f.GetLatestPlantSnapshotTime(ctx, "unknown-plant")
			require.NoError(t, err)
			assert.True(t, latest.IsZero())
			assert.Equal(t, 0, version)
		})

		t.Run("MissingTimestamp", func(t *testing.T) {
			err := f.UpsertPlantSnapshot(ctx, types.PlantSnapshot{PlantID: "plant-1"}, 0)
			assert.ErrorContains(t, err, "missing timestamp")
		})
	})

	t.Run("FaultLogs", func(t *testing.T) {
		fetched := time.Now().Truncate(time.Second).UTC()
		p2 := types.FaultLogPage{PlantID: "plant-1", Date: "2025-04-26", Page: 2, FetchedAt: fetched, Data: json.RawMessage(`{"page":2}`)}
		p1 := types.FaultLogPage{PlantID: "plant-1", Date: "2025-04-26", Page: 1, FetchedAt: fetched, Data: json.RawMessage(`{"page":1}`)}
		other := types.FaultLogPage{PlantID: "plant-1", Date: "2025-04-25", Page: 1, FetchedAt: fetched, Data: json.RawMessage(`{}`)}

		require.NoError(t, f.UpsertFaultLogPage(ctx, p2))
		require.NoError(t, f.UpsertFaultLogPage(ctx, p1))
		require.NoError(t, f.UpsertFaultLogPage(ctx, other))

		pages, err := f.GetFaultLogPages(ctx, "plant-1", "2025-04-26")
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Equal(t, 1, pages[0].Page)
		assert.Equal(t, 2, pages[1].Page)
		assert.JSONEq(t, `{"page":1}`, string(pages[0].Data))

		err = f.UpsertFaultLogPage(ctx, types.FaultLogPage{PlantID: "plant-1"})
		assert.ErrorContains(t, err, "missing date")
	})
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var db Database = Nop{}

	require.NoError(t, db.UpsertPlantSnapshot(ctx, types.PlantSnapshot{}, 0))
	snaps, err := db.GetPlantSnapshots(ctx, "p", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, snaps)
	ts, _, err := db.GetLatestPlantSnapshotTime(ctx, "p")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
	require.NoError(t, db.UpsertFaultLogPage(ctx, types.FaultLogPage{}))
	pages, err := db.GetFaultLogPages(ctx, "p", "2025-04-26")
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.NoError(t, db.Close())
}
