// Package device defines what the registry knows about a device: its
// Identifiers, the Device interface and the Constructor that turns a model
// designation and an RPC handler into a Device.
//
// Catalog is the default Constructor. It recognizes Shelly Gen2 and Gen3
// model designations and builds a generic Shelly device that caches
// component status and config as raw JSON.
package device
