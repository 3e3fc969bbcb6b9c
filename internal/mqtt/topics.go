package mqtt

import (
	"strings"

	"github.com/Xatter/shellies-ng/internal/shellies"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// Topics builds the topic names under a prefix.
//
//	<prefix>/status                  bridge online/offline (retained)
//	<prefix>/events/<kind>           lifecycle events as JSON
//	<prefix>/devices/<id>/online     device registered, "true"/"false" (retained)
type Topics struct {
	Prefix string
}

func (t Topics) Status() string {
	return t.Prefix + "/status"
}

func (t Topics) Event(kind shellies.EventKind) string {
	return t.Prefix + "/events/" + string(kind)
}

func (t Topics) DeviceOnline(id string) string {
	return t.Prefix + "/devices/" + escape(id) + "/online"
}

// escape replaces characters with special meaning in MQTT topics.
func escape(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
