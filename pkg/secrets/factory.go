package secrets

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/redis"
)

// BuildBackend selects a backend by name: "memory", "file" or "redis".
// path is used by the file backend, client by the redis backend.
func BuildBackend(kind, path string, client *redis.Client) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "memory", "mem", "inmem":
		return NewMemoryBackend(), nil
	case "", "file":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("secrets file backend requires a path")
		}
		return NewFileBackend(path)
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("secrets redis backend requires a redis client")
		}
		return NewRedisBackend(client, DefaultRedisPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend %q", kind)
	}
}
