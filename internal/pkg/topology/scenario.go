package topology

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SubstationAlphaSpec describes a 110/20 kV distribution substation: an external grid
// connection, the main transformer and three radial feeders with residential, commercial and
// industrial load.
func SubstationAlphaSpec() Spec {
	feederX, feederR := 0.1, 0.05
	return Spec{
		Name: "Substation Alpha",
		Buses: []Bus{
			{ID: "HV_Grid_Bus", VNom: 110},
			{ID: "MV_Station_Bus", VNom: 20},
			{ID: "Feeder_1_End", VNom: 20},
			{ID: "Feeder_2_End", VNom: 20},
			{ID: "Feeder_3_End", VNom: 20},
		},
		Generators: []Generator{
			{ID: "External_Grid", Bus: "HV_Grid_Bus", PNom: 100, Slack: true},
		},
		Edges: []Edge{
			{ID: "T1_Transformer", Kind: Transformer, Bus0: "HV_Grid_Bus", Bus1: "MV_Station_Bus", X: 0.1, R: 0.01, SNom: 40},
			{ID: "Feeder_1_Res", Kind: Line, Bus0: "MV_Station_Bus", Bus1: "Feeder_1_End", X: feederX, R: feederR, SNom: 10, LengthKm: 5},
			{ID: "Feeder_2_Comm", Kind: Line, Bus0: "MV_Station_Bus", Bus1: "Feeder_2_End", X: feederX, R: feederR, SNom: 10, LengthKm: 3},
			{ID: "Feeder_3_Ind", Kind: Line, Bus0: "MV_Station_Bus", Bus1: "Feeder_3_End", X: feederX, R: feederR, SNom: 15, LengthKm: 8},
		},
		Loads: []Load{
			{ID: "Load_Residential", Bus: "Feeder_1_End", PSet: 5},
			{ID: "Load_Commercial", Bus: "Feeder_2_End", PSet: 4},
			{ID: "Load_Industrial", Bus: "Feeder_3_End", PSet: 8},
		},
	}
}

// SubstationAlpha returns the built-in scenario as a validated Network.
func SubstationAlpha() (*Network, error) {
	return New(SubstationAlphaSpec())
}

// LoadFile reads a Spec from a JSON or YAML file (chosen by extension) and validates it.
func LoadFile(path string) (*Network, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	spec := Spec{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &spec)
	default:
		err = json.Unmarshal(raw, &spec)
	}
	if err != nil {
		return nil, err
	}
	return New(spec)
}
