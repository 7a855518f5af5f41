package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix roots every topic when none is configured.
const DefaultPrefix = "graylogic"

// Protocol is the bridge protocol segment in every lifx topic.
const Protocol = "lifx"

// Topics builds the flat bridge topic scheme:
//
//	{prefix}/{category}/lifx/{light_id}
//
// For example, with the default prefix:
//
//	graylogic/state/lifx/d0:73:d5:01:02:03
//	graylogic/command/lifx/d0:73:d5:01:02:03
//	graylogic/health/lifx
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix, or DefaultPrefix if empty.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// State returns the retained state topic of one light.
func (t Topics) State(lightID string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.prefix(), Protocol, lightID)
}

// Command returns the topic commands for one light arrive on.
func (t Topics) Command(lightID string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.prefix(), Protocol, lightID)
}

// AllCommands matches the command topic of every light.
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", t.prefix(), Protocol)
}

// Ack returns the topic command acknowledgements are published on.
func (t Topics) Ack(lightID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", t.prefix(), Protocol, lightID)
}

// Health returns the retained bridge health topic.
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", t.prefix(), Protocol)
}

// Discovery returns the topic newly seen lights are announced on.
func (t Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", t.prefix(), Protocol)
}

// Status returns the retained online/offline topic of this client,
// also used as its Last Will topic.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/system/%s/status", t.prefix(), Protocol)
}

// LightFromCommand extracts the light id from a command topic.
func (t Topics) LightFromCommand(topic string) (string, bool) {
	base := fmt.Sprintf("%s/command/%s/", t.prefix(), Protocol)
	id, ok := strings.CutPrefix(topic, base)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
