package pluginabi

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"
)

type EventType string

const (
	EventBlockBreak EventType = "block_break"
	EventBlockPlace EventType = "block_place"
	EventDamage     EventType = "damage"
	EventItemUse    EventType = "item_use"
	EventInteract   EventType = "interact"
	EventJoin       EventType = "join"
	EventQuit       EventType = "quit"
	EventChat       EventType = "chat"
	EventMove       EventType = "move"
)

var EventTypes = []EventType{
	EventBlockBreak, EventBlockPlace, EventDamage, EventItemUse, EventInteract,
	EventJoin, EventQuit, EventChat, EventMove,
}

// Damage causes the game server reports for burning.
const (
	CauseFire     = "fire"
	CauseFireTick = "fire_tick"
	CauseLava     = "lava"
)

// Event is something a player did on the game server. Player is the actor: the player
// breaking, placing, attacking, using, interacting or chatting. For damage Target is the
// player hurt and Pos is where that player stands; for block events Pos is the block.
type Event struct {
	Type    EventType
	Player  string
	Target  string
	World   string
	Pos     mgl64.Vec3
	Yaw     float64
	Item    string
	Cause   string
	Message string
	// Format is the chat line to show instead of the default one.
	Format string

	cancelled bool
}

func (e *Event) Cancel() {
	e.cancelled = true
}

func (e *Event) Cancelled() bool {
	return e.cancelled
}

func ValidEventType(t EventType) bool {
	return slices.Contains(EventTypes, t)
}
