// Package store is the durable key-value home of the dashboard
// collections. Values are JSON arrays wrapped in a versioned envelope;
// an absent key always reads back as an empty collection.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/clubdeck/api/internal/domain"
	"github.com/clubdeck/api/internal/identity"
)

// Store persists opaque collection payloads addressed by string keys.
type Store interface {
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)
	Set(ctx context.Context, key string, payload []byte) error
}

// envelopeVersion tags stored payloads for forward compatibility.
const envelopeVersion = 1

type envelope struct {
	Version int             `json:"version"`
	Items   json.RawMessage `json:"items"`
}

// CollectionKey addresses the per-identity collection for a resource kind.
func CollectionKey(kind domain.ResourceKind, id identity.Key) string {
	return collectionPrefix(kind) + ":" + id.String()
}

func collectionPrefix(kind domain.ResourceKind) string {
	switch kind {
	case domain.ResourceTeam:
		return "teams"
	case domain.ResourcePlayer:
		return "players"
	case domain.ResourceMatch:
		return "matches"
	}
	return string(kind)
}

// UsageKey addresses the per-identity usage counter record.
func UsageKey(id identity.Key) string {
	return "usage:" + id.String()
}

// Load reads a collection. A missing key yields an empty slice, and a
// corrupt or unreadable payload degrades to an empty slice with a logged
// warning rather than an error; only backend failures propagate.
func Load[T any](ctx context.Context, s Store, key string, logger *slog.Logger) ([]T, error) {
	payload, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return []T{}, nil
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.Warn("discarding corrupt collection payload", "key", key, "error", err)
		return []T{}, nil
	}
	if env.Version != envelopeVersion {
		logger.Warn("discarding collection with unknown schema version", "key", key, "version", env.Version)
		return []T{}, nil
	}
	items := []T{}
	if len(env.Items) > 0 {
		if err := json.Unmarshal(env.Items, &items); err != nil {
			logger.Warn("discarding corrupt collection items", "key", key, "error", err)
			return []T{}, nil
		}
	}
	return items, nil
}

// Count reports how many items a stored collection holds and whether
// the collection exists at all. Corrupt payloads count as present but
// empty, mirroring Load.
func Count(ctx context.Context, s Store, key string, logger *slog.Logger) (int, bool, error) {
	payload, found, err := s.Get(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("count %s: %w", key, err)
	}
	if !found {
		return 0, false, nil
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Version != envelopeVersion {
		logger.Warn("counting corrupt collection as empty", "key", key)
		return 0, true, nil
	}
	var items []json.RawMessage
	if len(env.Items) > 0 {
		if err := json.Unmarshal(env.Items, &items); err != nil {
			logger.Warn("counting corrupt collection items as empty", "key", key, "error", err)
			return 0, true, nil
		}
	}
	return len(items), true, nil
}

// Save writes the full collection under key, preserving item order.
func Save[T any](ctx context.Context, s Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	payload, err := json.Marshal(envelope{Version: envelopeVersion, Items: raw})
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", key, err)
	}
	if err := s.Set(ctx, key, payload); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
