package catalog

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Items []Item `yaml:"items"`
}

// ParseSeed reads a YAML catalog of the form `items: [...]`
func ParseSeed(r io.Reader) ([]Item, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "parse seed")
	}
	return f.Items, nil
}

// LoadSeed upserts every item of the seed file, stopping at the first
// invalid item. Returns the number of items stored.
func (c *Catalog) LoadSeed(ctx context.Context, r io.Reader) (int, error) {
	items, err := ParseSeed(r)
	if err != nil {
		return 0, err
	}
	for k, it := range items {
		if _, err := c.Upsert(ctx, it); err != nil {
			return k, errors.Wrapf(err, "seed item %d (%s)", k, it.ID)
		}
	}
	return len(items), nil
}
