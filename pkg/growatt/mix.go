package growatt

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/raterudder/growatt/pkg/log"
)

func mixCall(path, plantID, mixSN string) call {
	return call{
		method: http.MethodPost,
		path:   path,
		query:  url.Values{"plantId": {plantID}},
		form:   url.Values{"mixSn": {mixSN}},
		field:  []string{"obj"},
	}
}

func chartForm(dateKey, date, plantID, mixSN string) url.Values {
	return url.Values{
		dateKey:   {date},
		"plantId": {plantID},
		"mixSn":   {mixSN},
	}
}

// GetMixTotal returns the lifetime totals of a MIX inverter.
func (c *Client) GetMixTotal(ctx context.Context, plantID, mixSN string) (json.RawMessage, error) {
	if err := requirePlantID(plantID); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, mixCall("panel/mix/getMIXTotalData", plantID, mixSN))
}

// GetMixStatus returns the live status of a MIX inverter.
func (c *Client) GetMixStatus(ctx context.Context, plantID, mixSN string) (json.RawMessage, error) {
	if err := requirePlantID(plantID); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, mixCall("panel/mix/getMIXStatusData", plantID, mixSN))
}

// PostMixACDischargeTimePeriodNow sets the inverter's system time to the
// current local time.
func (c *Client) PostMixACDischargeTimePeriodNow(ctx context.Context, plantID, mixSN string) (json.RawMessage, error) {
	now := c.now().Format("2006-01-02 15:04:05")
	log.Ctx(ctx).DebugContext(ctx, "setting growatt mix time", slog.String("plantID", plantID), slog.String("mixSN", mixSN), slog.String("time", now))
	return c.dispatch(ctx, call{
		method: http.MethodPost,
		path:   "tcpSet.do",
		form: url.Values{
			"action":    {"mixSet"},
			"serialNum": {mixSN},
			"type":      {"pf_sys_year"},
			"param1":    {now},
		},
	})
}

// GetEnergyStatsDaily returns the day chart for date (YYYY-MM-DD).
func (c *Client) GetEnergyStatsDaily(ctx context.Context, date, plantID, mixSN string) (json.RawMessage, error) {
	return c.chart(ctx, "panel/mix/getMIXEnergyDayChart", chartForm("date", date, plantID, mixSN))
}

// GetEnergyStatsMonthly returns the month chart for date (YYYY-MM).
func (c *Client) GetEnergyStatsMonthly(ctx context.Context, date, plantID, mixSN string) (json.RawMessage, error) {
	return c.chart(ctx, "panel/mix/getMIXEnergyMonthChart", chartForm("date", date, plantID, mixSN))
}

// GetEnergyStatsYearly returns the year chart for year (YYYY).
func (c *Client) GetEnergyStatsYearly(ctx context.Context, year, plantID, mixSN string) (json.RawMessage, error) {
	return c.chart(ctx, "panel/mix/getMIXEnergyYearChart", chartForm("year", year, plantID, mixSN))
}

// GetEnergyStatsTotal returns the multi-year chart ending at year.
func (c *Client) GetEnergyStatsTotal(ctx context.Context, year, plantID, mixSN string) (json.RawMessage, error) {
	return c.chart(ctx, "panel/mix/getMIXEnergyTotalChart", chartForm("year", year, plantID, mixSN))
}

// GetWeeklyBatteryStats returns the battery chart of the last week.
func (c *Client) GetWeeklyBatteryStats(ctx context.Context, plantID, mixSN string) (json.RawMessage, error) {
	return c.chart(ctx, "panel/mix/getMIXBatChart", url.Values{
		"plantId": {plantID},
		"mixSn":   {mixSN},
	})
}

func (c *Client) chart(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	if err := requirePlantID(form.Get("plantId")); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, call{
		method: http.MethodPost,
		path:   path,
		form:   form,
	})
}
