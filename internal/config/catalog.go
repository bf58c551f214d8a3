package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog lists collections to create at seed time. Mystery box items
// reference NFT collections by catalog key.
type Catalog struct {
	Collections []CatalogCollection `yaml:"collections"`
}

type CatalogCollection struct {
	Key           string `yaml:"key"`
	Kind          string `yaml:"kind"`
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	ImageURL      string `yaml:"image_url"`
	Author        string `yaml:"author"`
	Price         string `yaml:"price"`
	Owner         string `yaml:"owner"`
	TotalQuantity int    `yaml:"total_quantity"`
	OpenLimit     int    `yaml:"open_limit"`
	// Status is applied after creation, e.g. "published". Empty keeps draft.
	Status string        `yaml:"status"`
	Items  []CatalogItem `yaml:"items"`
}

type CatalogItem struct {
	Collection string `yaml:"collection"`
	Weight     int    `yaml:"weight"`
	Quantity   int    `yaml:"quantity"`
}

const (
	KindNFT        = "nft"
	KindMysteryBox = "mystery_box"
)

// LoadCatalog parses and validates a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks keys are unique and box items point at NFT collections
// declared earlier in the file.
func (c *Catalog) Validate() error {
	kinds := make(map[string]string, len(c.Collections))
	for i, col := range c.Collections {
		key := strings.TrimSpace(col.Key)
		if key == "" {
			return fmt.Errorf("collections[%d]: key is required", i)
		}
		if _, dup := kinds[key]; dup {
			return fmt.Errorf("collections[%d]: duplicate key %q", i, key)
		}
		switch col.Kind {
		case KindNFT:
			if len(col.Items) > 0 {
				return fmt.Errorf("collection %s: items apply to mystery boxes only", key)
			}
		case KindMysteryBox:
			if len(col.Items) == 0 {
				return fmt.Errorf("collection %s: a mystery box needs items", key)
			}
			for j, it := range col.Items {
				if kinds[it.Collection] != KindNFT {
					return fmt.Errorf("collection %s: items[%d] references unknown NFT collection %q", key, j, it.Collection)
				}
			}
		default:
			return fmt.Errorf("collection %s: kind must be %s or %s", key, KindNFT, KindMysteryBox)
		}
		kinds[key] = col.Kind
	}
	return nil
}
