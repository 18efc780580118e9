package types

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// ID is an identifier the Growatt API sends either as a JSON string or as a
// bare number. It always decodes into its string form.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return &json.UnmarshalTypeError{Value: string(b), Type: reflect.TypeFor[ID]()}
	}
	*id = ID(b)
	return nil
}

// Float is a number the Growatt API sends either as a JSON number or as a
// numeric string. An empty string decodes as zero.
type Float float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var quoted string
		if err := json.Unmarshal(b, &quoted); err != nil {
			return err
		}
		s = strings.TrimSpace(quoted)
		if s == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &json.UnmarshalTypeError{Value: "string " + s, Type: reflect.TypeFor[Float]()}
	}
	*f = Float(v)
	return nil
}

// Plant is one entry of the plant list shown on the account's index page.
type Plant struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Address string `json:"plantAddress,omitempty"`
	PowerW  Float  `json:"plantPower,omitempty"`
	IsShare bool   `json:"isShare,omitempty"`
}

// UnmarshalJSON accepts the plant name under either "name" or "plantName".
func (p *Plant) UnmarshalJSON(b []byte) error {
	type plant Plant
	var aux struct {
		plant
		PlantName string `json:"plantName"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = Plant(aux.plant)
	if p.Name == "" {
		p.Name = aux.PlantName
	}
	return nil
}

// PlantList is the list of plants visible to the logged in account.
type PlantList []Plant

// PlantData is the detail panel of a single plant.
type PlantData struct {
	PlantName    string `json:"plantName,omitempty"`
	PlantID      ID     `json:"plantId,omitempty"`
	Capacity     Float  `json:"capacity,omitempty"`
	TodayEnergy  Float  `json:"todayEnergy,omitempty"`
	TotalEnergy  Float  `json:"totalEnergy,omitempty"`
	CurrentPower Float  `json:"currentPower,omitempty"`
}
