package growatt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// FaultLogQuery selects one page of a plant's fault log.
type FaultLogQuery struct {
	PlantID string
	// Date is YYYY-MM-DD. Empty means today in local time.
	Date       string
	DeviceSN   string
	PageNum    int
	DeviceFlag int
	FaultType  int
}

func (q FaultLogQuery) form(now func() time.Time) url.Values {
	date := q.Date
	if date == "" {
		date = now().Format(time.DateOnly)
	}
	return url.Values{
		"deviceSn":   {q.DeviceSN},
		"date":       {date},
		"plantId":    {q.PlantID},
		"toPageNum":  {strconv.Itoa(q.PageNum)},
		"type":       {strconv.Itoa(q.FaultType)},
		"deviceFlag": {strconv.Itoa(q.DeviceFlag)},
	}
}

// GetFaultLogs returns one page of fault log entries. The plant ID is
// required and is checked before anything is sent.
func (c *Client) GetFaultLogs(ctx context.Context, q FaultLogQuery) (json.RawMessage, error) {
	if err := requirePlantID(q.PlantID); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, call{
		method: http.MethodPost,
		path:   "log/getNewPlantFaultLog",
		form:   q.form(c.now),
		header: http.Header{
			"X-Requested-With": {"XMLHttpRequest"},
			"Accept":           {"application/json, text/javascript, */*; q=0.01"},
		},
	})
}

// GetPlantFaultLogs is the same as GetFaultLogs.
func (c *Client) GetPlantFaultLogs(ctx context.Context, q FaultLogQuery) (json.RawMessage, error) {
	return c.GetFaultLogs(ctx, q)
}
