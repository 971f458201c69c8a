package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/fern/pkg/models"
)

// FieldPaths are the JMESPath expressions used to pull line fields out of a JSON payload.
// Events selects the list of event objects; the rest are evaluated against each one.
type FieldPaths struct {
	Events    string `yaml:"events"`
	EventType string `yaml:"event"`
	ID        string `yaml:"id"`
	Barcode   string `yaml:"barcode"`
	Quantity  string `yaml:"quantity"`
	Name      string `yaml:"name"`
}

// DefaultFieldPaths covers the payload shapes each provider sends
var DefaultFieldPaths = map[models.Provider]FieldPaths{
	models.ProviderQuickBooks: {
		Events:    "eventNotifications[].dataChangeEvent.entities[] || [@]",
		EventType: "operation || event",
		ID:        "id",
		Barcode:   "Sku || sku || barcode",
		Quantity:  "QtyOnHand || quantity || qty",
		Name:      "Name || name",
	},
	models.ProviderShopify: {
		Events:    "inventory_levels || [@]",
		EventType: "topic || event",
		ID:        "inventory_item_id || id",
		Barcode:   "sku || barcode",
		Quantity:  "available || quantity || qty",
		Name:      "title || name",
	},
	models.ProviderSquare: {
		Events:    "data.object.inventory_counts || [@]",
		EventType: "type || event",
		ID:        "catalog_object_id || id",
		Barcode:   "sku || barcode || catalog_object_id",
		Quantity:  "quantity || qty",
		Name:      "name",
	},
}

// Normalizer converts JSON webhook bodies into ingestible lines. Compiled
// expressions are cached.
type Normalizer struct {
	paths map[models.Provider]FieldPaths
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

// NewNormalizer creates a normalizer. Providers missing from paths use DefaultFieldPaths.
func NewNormalizer(paths map[models.Provider]FieldPaths) *Normalizer {
	merged := make(map[models.Provider]FieldPaths, len(DefaultFieldPaths))
	for provider, fp := range DefaultFieldPaths {
		merged[provider] = fp
	}
	for provider, fp := range paths {
		merged[provider] = fp
	}
	return &Normalizer{
		paths: merged,
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// IsJSON reports whether body looks like a JSON document rather than line text
func IsJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// Normalize renders a JSON payload as newline separated key=value lines
func (n *Normalizer) Normalize(provider models.Provider, body []byte) (string, error) {
	paths, ok := n.paths[provider]
	if !ok {
		return "", fmt.Errorf("no field paths configured for provider %s", provider)
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("invalid JSON webhook payload: %w", err)
	}

	events, err := n.evaluateSlice(paths.Events, data)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(events))
	for _, event := range events {
		line, err := n.renderLine(paths, event, data)
		if err != nil {
			return "", err
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (n *Normalizer) renderLine(paths FieldPaths, event, root interface{}) (string, error) {
	fields := []struct {
		key  string
		expr string
	}{
		{"event", paths.EventType},
		{"id", paths.ID},
		{"barcode", paths.Barcode},
		{"qty", paths.Quantity},
		{"name", paths.Name},
	}

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if field.expr == "" {
			continue
		}
		value, err := n.evaluateString(field.expr, event)
		if err != nil {
			return "", err
		}
		// event types usually sit on the envelope, not the item
		if value == "" && field.key == "event" {
			if value, err = n.evaluateString(field.expr, root); err != nil {
				return "", err
			}
		}
		if value = sanitizeValue(value); value != "" {
			tokens = append(tokens, field.key+"="+value)
		}
	}
	return strings.Join(tokens, " "), nil
}

// sanitizeValue keeps a value inside one token
func sanitizeValue(value string) string {
	return strings.Join(strings.FieldsFunc(value, isSeparator), "_")
}

func (n *Normalizer) evaluate(expression string, data interface{}) (interface{}, error) {
	compiled, err := n.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

func (n *Normalizer) evaluateString(expression string, data interface{}) (string, error) {
	result, err := n.evaluate(expression, data)
	if err != nil || result == nil {
		return "", err
	}
	switch v := result.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case map[string]interface{}, []interface{}:
		return "", nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func (n *Normalizer) evaluateSlice(expression string, data interface{}) ([]interface{}, error) {
	result, err := n.evaluate(expression, data)
	if err != nil || result == nil {
		return nil, err
	}
	slice, ok := result.([]interface{})
	if !ok {
		return []interface{}{result}, nil
	}
	return slice, nil
}

func (n *Normalizer) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	n.mu.RLock()
	if compiled, ok := n.cache[expression]; ok {
		n.mu.RUnlock()
		return compiled, nil
	}
	n.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.cache[expression] = compiled
	n.mu.Unlock()

	return compiled, nil
}
