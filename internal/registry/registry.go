// Package registry stores the externally visible device records the engine
// publishes appliance state into. It plays the role of the host automation
// platform's device table, keyed by stable device identifiers.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/csutihu/stlaundry/internal/config"
)

// ErrUnknownDevice is returned when a device identifier has no record.
var ErrUnknownDevice = errors.New("registry: unknown device")

// Class describes how a device renders its state.
type Class string

const (
	// ClassSwitch is an on/off device driven by the numeric state.
	ClassSwitch Class = "switch"
	// ClassText is a free-text device driven by the text state.
	ClassText Class = "text"
)

// Device describes one device record to be created.
type Device struct {
	ID    string
	Unit  int
	Name  string
	Class Class
}

// State is the last published numeric/text value pair of a device.
type State struct {
	Numeric int
	Text    string
}

// Registry provides idempotent create plus read/update access to device
// records. Implementations must make Ensure a no-op for existing devices so
// published state survives restarts.
type Registry interface {
	Ensure(ctx context.Context, device Device) error
	Exists(ctx context.Context, id string) (bool, error)
	Read(ctx context.Context, id string) (State, error)
	Update(ctx context.Context, id string, numeric int, text string) error
	Close() error
}

// Open builds the registry backend selected by the configuration.
func Open(cfg config.RegistryConfig) (Registry, error) {
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported registry driver %q", cfg.Driver)
	}
}
