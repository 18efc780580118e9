package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/raterudder/growatt/pkg/storage"
	"github.com/raterudder/growatt/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) UpsertPlantSnapshot(ctx context.Context, snap types.PlantSnapshot, version int) error {
	args := m.Called(ctx, snap, version)
	return args.Error(0)
}

func (m *MockDatabase) GetPlantSnapshots(ctx context.Context, plantID string, start, end time.Time) ([]types.PlantSnapshot, error) {
	args := m.Called(ctx, plantID, start, end)
	if len(args) > 0 {
		snaps, _ := args.Get(0).([]types.PlantSnapshot)
		return snaps, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetLatestPlantSnapshotTime(ctx context.Context, plantID string) (time.Time, int, error) {
	args := m.Called(ctx, plantID)
	if len(args) > 0 {
		return args.Get(0).(time.Time), args.Int(1), args.Error(2)
	}
	return time.Time{}, 0, nil
}

func (m *MockDatabase) UpsertFaultLogPage(ctx context.Context, page types.FaultLogPage) error {
	args := m.Called(ctx, page)
	return args.Error(0)
}

func (m *MockDatabase) GetFaultLogPages(ctx context.Context, plantID, date string) ([]types.FaultLogPage, error) {
	args := m.Called(ctx, plantID, date)
	if len(args) > 0 {
		pages, _ := args.Get(0).([]types.FaultLogPage)
		return pages, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
