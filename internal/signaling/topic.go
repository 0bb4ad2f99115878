package signaling

import (
	"strings"

	"github.com/1ureka/camlink/internal/config"
)

// Wildcard matches any single topic level.
const Wildcard = "+"

// inbox returns the topic prefix a role listens on. The viewer's inbox keeps
// the "server" name of the reference deployment so both ends interoperate
// with existing brokers.
func inbox(r config.Role) string {
	if r == config.RoleCamera {
		return "camera"
	}
	return "server"
}

// SubscribeTopic is the topic a role listens on: "<inbox>/live/<id>", with
// the wildcard when id is empty.
func SubscribeTopic(r config.Role, id string) string {
	if id == "" {
		id = Wildcard
	}
	return inbox(r) + "/live/" + id
}

// PublishTopic is where a role sends its signaling: "<peer inbox>/live/<id>".
func PublishTopic(r config.Role, id string) string {
	return inbox(r.Peer()) + "/live/" + id
}

// DeviceFromTopic returns the last topic level, which carries a device id.
func DeviceFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
