package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/models"
)

type seedFile struct {
	Items []models.Item `yaml:"items"`
}

// LoadSeed reads catalog items from a YAML file of the form
//
//	items:
//	  - id: widget-1
//	    workspace: shop
//	    name: Blue Widget
//	    on_hand: 40
//	    barcode: SKU1
//
// Items without a workspace land in the "all" workspace.
func LoadSeed(path string) ([]models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog seed %s: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog seed %s: %w", path, err)
	}

	for i := range seed.Items {
		if seed.Items[i].Workspace == "" {
			seed.Items[i].Workspace = models.AllWorkspaces
		}
		if seed.Items[i].OnHand < 0 {
			return nil, fmt.Errorf("catalog seed item %q: %w", seed.Items[i].ID, ErrNegativeUnits)
		}
	}
	return seed.Items, nil
}
