package growatt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/raterudder/growatt/pkg/types"
)

func requirePlantID(plantID string) error {
	if plantID == "" {
		return kindError(ErrInvalidArgument, "plant ID must be provided")
	}
	return nil
}

// GetPlants returns every plant visible to the account. Every entry must carry
// an id and a name.
func (c *Client) GetPlants(ctx context.Context) (types.PlantList, error) {
	plants, err := fetch[types.PlantList](ctx, c, call{
		method: http.MethodPost,
		path:   "index/getPlantListTitle",
		form:   url.Values{},
	})
	if err != nil {
		return nil, err
	}
	for i, p := range plants {
		if p.ID == "" || p.Name == "" {
			return nil, kindError(ErrInvalidResponse, "plant %d is missing its id or name", i)
		}
	}
	return plants, nil
}

// GetPlant returns the summary of one plant.
func (c *Client) GetPlant(ctx context.Context, plantID string) (types.PlantData, error) {
	if err := requirePlantID(plantID); err != nil {
		return types.PlantData{}, err
	}
	return fetch[types.PlantData](ctx, c, call{
		method: http.MethodPost,
		path:   "panel/getPlantData",
		query:  url.Values{"plantId": {plantID}},
		field:  []string{"obj"},
	})
}

// GetWeather returns the environment readings of a plant.
func (c *Client) GetWeather(ctx context.Context, plantID string) (json.RawMessage, error) {
	if err := requirePlantID(plantID); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, call{
		method: http.MethodPost,
		path:   "device/getEnvList",
		form:   url.Values{"plantId": {plantID}, "currPage": {"1"}},
	})
}

// GetMixIDs returns the hybrid inverters (MIX) attached to a plant.
func (c *Client) GetMixIDs(ctx context.Context, plantID string) (json.RawMessage, error) {
	if err := requirePlantID(plantID); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, call{
		method: http.MethodPost,
		path:   "panel/getDevicesByPlant",
		query:  url.Values{"plantId": {plantID}},
		field:  []string{"obj", "mix"},
	})
}

// GetDeviceList returns the first page of MAX inverters of a plant.
func (c *Client) GetDeviceList(ctx context.Context, plantID string) (json.RawMessage, error) {
	if err := requirePlantID(plantID); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, call{
		method: http.MethodPost,
		path:   "device/getMAXList",
		form:   url.Values{"plantId": {plantID}, "currPage": {"1"}},
	})
}

// GetDevicesByPlantList returns one page of every device of a plant. Pages
// start at 1; anything lower is treated as 1.
func (c *Client) GetDevicesByPlantList(ctx context.Context, plantID string, page int) (json.RawMessage, error) {
	if err := requirePlantID(plantID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	return c.dispatch(ctx, call{
		method: http.MethodPost,
		path:   "panel/getDevicesByPlantList",
		form:   url.Values{"plantId": {plantID}, "currPage": {strconv.Itoa(page)}},
	})
}
