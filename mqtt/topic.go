package mqtt

import "strings"

// ValidTopic checks a topic filter before it is subscribed:
//   - non-empty, no control characters and no spaces
//   - no empty levels ("a//b")
//   - "+" only as a whole level
//   - at most one "#", as the whole last level
func ValidTopic(topic string) bool {
	if topic == "" {
		return false
	}
	for _, r := range topic {
		if r < 32 || r == ' ' {
			return false
		}
	}
	if strings.Contains(topic, "//") {
		return false
	}
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return false
		}
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return false
		}
	}
	return true
}
