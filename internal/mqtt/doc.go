// Package mqtt publishes device lifecycle events to an MQTT broker.
//
// Client is a thin wrapper around paho.mqtt.golang with a retained
// <prefix>/status message and a matching Last Will. Bridge subscribes to a
// shellies.Observable and publishes one JSON message per event to
// <prefix>/events/<kind>, plus a retained <prefix>/devices/<id>/online flag
// that follows add and remove.
package mqtt
