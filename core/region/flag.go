package region

import "strings"

// Flag names an action category that regions can permit or deny.
type Flag string

const (
	FlagFire  Flag = "fire"
	FlagPearl Flag = "pearl"
	FlagPvP   Flag = "pvp"
	FlagBreak Flag = "break"
	FlagPlace Flag = "place"
)

// Flags lists every flag a region stores.
var Flags = []Flag{FlagFire, FlagPearl, FlagPvP, FlagBreak, FlagPlace}

// ParseFlag resolves a flag by name, ignoring case.
func ParseFlag(s string) (Flag, bool) {
	f := Flag(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Flags {
		if f == known {
			return f, true
		}
	}
	return f, false
}
