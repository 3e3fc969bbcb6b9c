package device

import (
	"errors"
	"fmt"
)

// ErrMissingID is returned by Validate when the device ID is empty.
var ErrMissingID = errors.New("device: identifiers have no device ID")

// DeviceID identifies one physical device, e.g. "shellyplus1-a8032ab12345".
type DeviceID string

// Identifiers is what a discoverer knows about a device. Two values with the
// same DeviceID refer to the same device even if the other fields differ.
type Identifiers struct {
	DeviceID DeviceID

	// Model is the model designation, e.g. "SNSW-001X16EU". Empty when the
	// discoverer cannot know it.
	Model string

	// Address is host or host:port of the device's RPC endpoint.
	Address string

	// Hostname is the mDNS hostname, if known.
	Hostname string

	// Gen is the API generation (2 or later), 0 if unknown.
	Gen int
}

// Validate checks that the identifiers can be processed.
func (i Identifiers) Validate() error {
	if i.DeviceID == "" {
		return ErrMissingID
	}
	return nil
}

// String returns a human-readable representation.
func (i Identifiers) String() string {
	model := i.Model
	if model == "" {
		model = "unknown model"
	}
	if i.Address == "" {
		return fmt.Sprintf("%s (%s)", i.DeviceID, model)
	}
	return fmt.Sprintf("%s (%s) at %s", i.DeviceID, model, i.Address)
}
