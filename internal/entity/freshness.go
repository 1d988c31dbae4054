package entity

import "fmt"

type FreshnessLevel int

const (
	Fresh FreshnessLevel = iota
	Stale
	Warning
)

func (l FreshnessLevel) String() string {
	switch l {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Warning:
		return "warning"
	default:
		return fmt.Sprintf("FreshnessLevel(%d)", int(l))
	}
}

func (l FreshnessLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *FreshnessLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "fresh":
		*l = Fresh
	case "stale":
		*l = Stale
	case "warning":
		*l = Warning
	default:
		return fmt.Errorf("unknown freshness level %q", text)
	}
	return nil
}
