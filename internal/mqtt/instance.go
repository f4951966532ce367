package mqtt

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	instanceNamespace = "mqtt"
	instanceKey       = "instance_id"
)

// KV is the slice of the state store the instance id needs.
type KV interface {
	Get(namespace, key string) (string, error)
	Set(namespace, key, value string) error
}

// LoadOrCreateInstanceID returns the persisted instance id, generating
// and storing a new UUIDv7 on first run. The id is the stable device
// identifier and survives renames of device_name.
func LoadOrCreateInstanceID(store KV) (string, error) {
	id, err := store.Get(instanceNamespace, instanceKey)
	if err != nil {
		return "", fmt.Errorf("load instance ID: %w", err)
	}
	if id != "" {
		return id, nil
	}

	v7, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}
	id = v7.String()
	if err := store.Set(instanceNamespace, instanceKey, id); err != nil {
		return "", fmt.Errorf("persist instance ID: %w", err)
	}
	return id, nil
}

// clientID derives the MQTT client id from the instance id. The random
// tail of a UUIDv7 keeps it unique and short enough for strict brokers.
func clientID(instanceID string) string {
	tail := instanceID
	if len(tail) > 12 {
		tail = tail[len(tail)-12:]
	}
	return "steward-" + tail
}
