package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/growatt/pkg/log"
	"github.com/raterudder/growatt/pkg/types"
)

const maxHistoryRange = 31 * 24 * time.Hour

var errInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

func (s *Server) handlePlantHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plantID := r.PathValue("plantID")
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	snaps, err := s.storage.GetPlantSnapshots(ctx, plantID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get plant history", slog.String("plantID", plantID), slog.Any("error", err))
		writeJSONError(w, "failed to get plant history", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []types.PlantSnapshot{}
	}

	// If the range ends before today (midnight today), cache for 24 hours.
	// Otherwise, cache for 1 minute.
	today := truncateDay(time.Now())
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
	writeJSON(w, snaps)
}

func (s *Server) handlePlantFaultHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plantID := r.PathValue("plantID")
	date, err := parseDate(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if date == "" {
		date = time.Now().Format(time.DateOnly)
	}

	pages, err := s.storage.GetFaultLogPages(ctx, plantID, date)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get fault log history", slog.String("plantID", plantID), slog.Any("error", err))
		writeJSONError(w, "failed to get fault log history", http.StatusInternalServerError)
		return
	}
	if pages == nil {
		pages = []types.FaultLogPage{}
	}
	writeJSON(w, pages)
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		// Default to last 24 hours if not specified
		end := time.Now()
		start := end.Add(-24 * time.Hour)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxHistoryRange {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 31 days")
	}

	return start, end, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
