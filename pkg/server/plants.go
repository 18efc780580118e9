package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/raterudder/growatt/pkg/growatt"
)

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	plants, err := s.source.GetPlants(r.Context())
	if err != nil {
		writeGrowattError(w, r, "failed to get plants", err)
		return
	}
	writeJSON(w, plants)
}

func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	data, err := s.source.GetPlant(r.Context(), r.PathValue("plantID"))
	if err != nil {
		writeGrowattError(w, r, "failed to get plant", err)
		return
	}
	writeJSON(w, data)
}

func (s *Server) handlePlantFaults(w http.ResponseWriter, r *http.Request) {
	q := growatt.FaultLogQuery{
		PlantID:  r.PathValue("plantID"),
		DeviceSN: r.URL.Query().Get("deviceSN"),
		PageNum:  1,
	}
	date, err := parseDate(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	q.Date = date
	if p := r.URL.Query().Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page < 1 {
			writeJSONError(w, "invalid page", http.StatusBadRequest)
			return
		}
		q.PageNum = page
	}

	raw, err := s.source.GetFaultLogs(r.Context(), q)
	if err != nil {
		writeGrowattError(w, r, "failed to get fault logs", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(raw); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// parseDate returns the date query parameter after checking it is a
// YYYY-MM-DD day. It is "" when absent.
func parseDate(r *http.Request) (string, error) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return "", nil
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return "", errInvalidDate
	}
	return date, nil
}
