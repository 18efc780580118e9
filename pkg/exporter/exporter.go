// Package exporter exposes Growatt plant readings as Prometheus metrics.
package exporter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raterudder/growatt/pkg/log"
	"github.com/raterudder/growatt/pkg/types"
)

const defaultScrapeTimeout = 20 * time.Second

// Source is the part of *growatt.Client the collector reads from.
type Source interface {
	GetPlants(ctx context.Context) (types.PlantList, error)
	GetPlant(ctx context.Context, plantID string) (types.PlantData, error)
}

// Collector fetches every plant from Growatt on each scrape.
type Collector struct {
	source  Source
	timeout time.Duration
	now     func() time.Time

	currentPower *prometheus.GaugeVec
	todayEnergy  *prometheus.GaugeVec
	totalEnergy  *prometheus.GaugeVec
	capacity     *prometheus.GaugeVec
	nominalPower *prometheus.GaugeVec
	success      prometheus.Gauge
	lastSuccess  prometheus.Gauge

	// scrapes are serialized since they share the vectors above
	mu sync.Mutex
}

func NewCollector(source Source) *Collector {
	labels := []string{"plant_id", "plant_name"}
	return &Collector{
		source:  source,
		timeout: defaultScrapeTimeout,
		now:     time.Now,
		currentPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "growatt_plant_current_power_watts",
			Help: "Current power output per plant (watts)",
		}, labels),
		todayEnergy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "growatt_plant_today_energy_kwh",
			Help: "Today's energy per plant (kWh)",
		}, labels),
		totalEnergy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "growatt_plant_total_energy_kwh",
			Help: "Total lifetime energy per plant (kWh)",
		}, labels),
		capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "growatt_plant_capacity_watts",
			Help: "Reported capacity per plant (watts)",
		}, labels),
		nominalPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "growatt_plant_nominal_power_watts",
			Help: "Nominal power from the plant list (watts)",
		}, labels),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "growatt_scrape_success",
			Help: "Last scrape success (1=ok, 0=error)",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "growatt_last_success_timestamp_seconds",
			Help: "Last successful Growatt scrape timestamp (epoch seconds)",
		}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.currentPower.Describe(ch)
	c.todayEnergy.Describe(ch)
	c.totalEnergy.Describe(ch)
	c.capacity.Describe(ch)
	c.nominalPower.Describe(ch)
	c.success.Describe(ch)
	c.lastSuccess.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.refresh(ctx)
	c.collectAll(ch)
}

func (c *Collector) refresh(ctx context.Context) {
	c.currentPower.Reset()
	c.todayEnergy.Reset()
	c.totalEnergy.Reset()
	c.capacity.Reset()
	c.nominalPower.Reset()

	plants, err := c.source.GetPlants(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "growatt scrape failed", slog.Any("error", err))
		c.success.Set(0)
		return
	}

	ok := true
	for _, plant := range plants {
		labels := prometheus.Labels{
			"plant_id":   string(plant.ID),
			"plant_name": plant.Name,
		}
		c.nominalPower.With(labels).Set(float64(plant.PowerW))

		data, err := c.source.GetPlant(ctx, string(plant.ID))
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "growatt plant scrape failed", slog.String("plantID", string(plant.ID)), slog.Any("error", err))
			ok = false
			continue
		}
		c.currentPower.With(labels).Set(float64(data.CurrentPower))
		c.todayEnergy.With(labels).Set(float64(data.TodayEnergy))
		c.totalEnergy.With(labels).Set(float64(data.TotalEnergy))
		c.capacity.With(labels).Set(float64(data.Capacity))
	}

	if ok {
		c.success.Set(1)
		c.lastSuccess.Set(float64(c.now().Unix()))
	} else {
		c.success.Set(0)
	}
}

func (c *Collector) collectAll(ch chan<- prometheus.Metric) {
	c.currentPower.Collect(ch)
	c.todayEnergy.Collect(ch)
	c.totalEnergy.Collect(ch)
	c.capacity.Collect(ch)
	c.nominalPower.Collect(ch)
	c.success.Collect(ch)
	c.lastSuccess.Collect(ch)
}
