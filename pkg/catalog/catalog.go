// Package catalog is the item catalog collaborator the sync engine reads from
// and applies accepted remote quantities to.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

var (
	// ErrItemNotFound is returned when an item id is unknown in the workspace
	ErrItemNotFound = errors.New("item not found")

	// ErrNegativeUnits is returned when a total below zero is applied
	ErrNegativeUnits = errors.New("units cannot be negative")
)

// Catalog is read access to workspace-scoped items plus the mutations the engine needs
type Catalog interface {
	ListItems(ctx context.Context, workspace string) ([]models.Item, error)
	GetItem(ctx context.Context, workspace, id string) (models.Item, error)
	ApplyTotalUnits(ctx context.Context, item models.Item, newTotal int) (models.Item, error)
	CreateItem(ctx context.Context, item models.Item) (models.Item, error)
}

// MemoryCatalog keeps items in memory, in insertion order
type MemoryCatalog struct {
	mu    sync.RWMutex
	items []models.Item
}

// NewMemoryCatalog creates a catalog holding items
func NewMemoryCatalog(items ...models.Item) *MemoryCatalog {
	c := &MemoryCatalog{}
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		c.items = append(c.items, item)
	}
	return c
}

func inWorkspace(item models.Item, workspace string) bool {
	return workspace == models.AllWorkspaces || item.Workspace == workspace
}

// ListItems returns the items in workspace sorted by name. The "all" workspace lists everything.
func (c *MemoryCatalog) ListItems(_ context.Context, workspace string) ([]models.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]models.Item, 0, len(c.items))
	for _, item := range c.items {
		if inWorkspace(item, workspace) {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

func (c *MemoryCatalog) GetItem(_ context.Context, workspace, id string) (models.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if idx := c.indexOf(workspace, id); idx >= 0 {
		return c.items[idx], nil
	}
	return models.Item{}, ErrItemNotFound
}

// ApplyTotalUnits sets an item's on-hand units
func (c *MemoryCatalog) ApplyTotalUnits(_ context.Context, item models.Item, newTotal int) (models.Item, error) {
	if newTotal < 0 {
		return models.Item{}, ErrNegativeUnits
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(item.Workspace, item.ID)
	if idx < 0 {
		return models.Item{}, ErrItemNotFound
	}
	c.items[idx].OnHand = newTotal
	return c.items[idx], nil
}

// CreateItem adds an item, assigning an id when it has none
func (c *MemoryCatalog) CreateItem(_ context.Context, item models.Item) (models.Item, error) {
	if item.OnHand < 0 {
		return models.Item{}, ErrNegativeUnits
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
	return item, nil
}

func (c *MemoryCatalog) indexOf(workspace, id string) int {
	for i, item := range c.items {
		if item.ID == id && inWorkspace(item, workspace) {
			return i
		}
	}
	return -1
}
