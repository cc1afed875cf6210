package mqttbridge

import "strings"

// Topic leaves under a device lookup key
const (
	leafState      = "state"
	leafSet        = "set"
	leafAttributes = "attributes"
	leafMovement   = "movement"
)

// Topics builds the bridge topic tree. Lookup keys contain slashes, so a
// device lives at <prefix>/<serial>/<channel>[/<suffix>].
type Topics struct {
	Prefix string
}

// State is the retained raw state of a device object
func (t Topics) State(lookupKey string) string {
	return t.Prefix + "/" + lookupKey + "/" + leafState
}

// Set is where commands for a device object are accepted
func (t Topics) Set(lookupKey string) string {
	return t.Prefix + "/" + lookupKey + "/" + leafSet
}

// Attributes is the retained JSON description of a device object
func (t Topics) Attributes(lookupKey string) string {
	return t.Prefix + "/" + lookupKey + "/" + leafAttributes
}

// Movement is the retained movement state of a cover (0 stopped, 2
// closing, 3 opening)
func (t Topics) Movement(lookupKey string) string {
	return t.Prefix + "/" + lookupKey + "/" + leafMovement
}

// Status carries the bridge online/offline status
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// SetFilters are the subscriptions covering every Set topic: keys with and
// without a suffix.
func (t Topics) SetFilters() []string {
	return []string{
		t.Prefix + "/+/+/" + leafSet,
		t.Prefix + "/+/+/+/" + leafSet,
	}
}

// LookupKeyFromSet extracts the lookup key from a Set topic
func (t Topics) LookupKeyFromSet(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return "", false
	}
	key, ok := strings.CutSuffix(rest, "/"+leafSet)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
