package types

import (
	"encoding/json"
	"time"
)

// CurrentSnapshotVersion is bumped whenever PlantSnapshot changes in a way
// that requires previously stored snapshots to be re-recorded.
const CurrentSnapshotVersion = 1

// PlantSnapshot is a point-in-time reading of a plant, as recorded into storage.
type PlantSnapshot struct {
	PlantID        string    `json:"plantID"`
	PlantName      string    `json:"plantName"`
	Timestamp      time.Time `json:"timestamp"`
	Capacity       float64   `json:"capacity"`
	CurrentPowerW  float64   `json:"currentPowerW"`
	TodayEnergyKWH float64   `json:"todayEnergyKWH"`
	TotalEnergyKWH float64   `json:"totalEnergyKWH"`
}

// NewPlantSnapshot builds a snapshot out of a plant list entry and its detail.
func NewPlantSnapshot(plant Plant, data PlantData, ts time.Time) PlantSnapshot {
	name := data.PlantName
	if name == "" {
		name = plant.Name
	}
	return PlantSnapshot{
		PlantID:        string(plant.ID),
		PlantName:      name,
		Timestamp:      ts,
		Capacity:       float64(data.Capacity),
		CurrentPowerW:  float64(data.CurrentPower),
		TodayEnergyKWH: float64(data.TodayEnergy),
		TotalEnergyKWH: float64(data.TotalEnergy),
	}
}

// FaultLogPage is one page of a plant's fault log for a given day, stored as
// returned by the API.
type FaultLogPage struct {
	PlantID   string          `json:"plantID"`
	Date      string          `json:"date"`
	DeviceSN  string          `json:"deviceSN,omitempty"`
	Page      int             `json:"page"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Data      json.RawMessage `json:"data"`
}
