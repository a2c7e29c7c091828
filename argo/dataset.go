package argo

import (
	"context"
	"encoding/json"
	"io"

	"github.com/alecthomas/errors"
)

// Dataset is the JSON document accepted by the import command.
type Dataset struct {
	Floats   []Float   `json:"floats"`
	Profiles []Profile `json:"profiles"`
}

// SeedDataset returns the demo dataset served by [NewSeededMemoryStore].
func SeedDataset() Dataset {
	dataset := Dataset{Floats: SeedFloats()}
	for _, float := range dataset.Floats {
		dataset.Profiles = append(dataset.Profiles, SeedProfiles(float)...)
	}
	return dataset
}

// ReadDataset decodes a [Dataset], rejecting unknown fields.
func ReadDataset(r io.Reader) (Dataset, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var dataset Dataset
	if err := dec.Decode(&dataset); err != nil {
		return Dataset{}, errors.Errorf("failed to decode dataset: %w", err)
	}
	return dataset, nil
}

// Load stores every float, then every profile, in the store.
func (d Dataset) Load(ctx context.Context, store Store) error {
	for _, float := range d.Floats {
		if err := store.PutFloat(ctx, float); err != nil {
			return errors.Errorf("float %s: %w", float.ID, err)
		}
	}
	for _, profile := range d.Profiles {
		if err := store.PutProfile(ctx, profile); err != nil {
			return errors.Errorf("profile %s/%s: %w", profile.FloatID, profile.Variable, err)
		}
	}
	return nil
}
