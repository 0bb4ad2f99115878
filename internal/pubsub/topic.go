package pubsub

import "strings"

// Match reports whether topic matches the MQTT-style filter.
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

// redisPattern converts an MQTT-style filter into a Redis PSUBSCRIBE glob.
// Redis '*' also spans '/', so callers still filter with Match.
func redisPattern(filter string) string {
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch level {
		case "+", "#":
			levels[i] = "*"
		default:
			levels[i] = globEscaper.Replace(level)
		}
	}
	return strings.Join(levels, "/")
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
