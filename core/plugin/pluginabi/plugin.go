package pluginabi

import (
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/config"
)

// Console is the name commands typed into the daemon run as.
const Console = "CONSOLE"

type Plugin interface {
	Init(PluginManager) error
	Start()
	Pause()
	Name() string
	DisplayName() string
}

type PluginName interface {
	Name() string
	DisplayName() string
}

type PluginNameWrapper struct {
	PluginName string
}

func (p *PluginNameWrapper) Name() string {
	return p.PluginName
}

func (p *PluginNameWrapper) DisplayName() string {
	return p.PluginName
}

// Reloader is implemented by plugins that can read their stores again, after a backup
// was restored for instance.
type Reloader interface {
	Reload() error
}

// PermissionProvider is implemented by plugins granting permissions to players.
type PermissionProvider interface {
	Permissions(player string) []string
}

// Host is the game server as seen by the plugins. The console of a Bedrock server does
// not answer, so every call only reports whether the command could be sent.
type Host interface {
	Tell(player string, message string) error
	Broadcast(message string) error
	GiveItem(player string, item string, count int) error
	TakeItem(player string, item string, count int) error
	SetBlock(world string, x, y, z int, block string) error
	SetNameTag(player string, nameTag string) error
	SetPermissions(player string, permissions []string) error
}

type ServerStatus struct {
	Running    bool
	Pid        int32
	Usedmemory uint64
	Uptime     time.Duration
}

type EventHandler func(*Event)

type PluginManager interface {
	Printf(scope string, format string, a ...any) (n int, err error)
	Println(scope string, a ...any) (n int, err error)
	RegisterPlugin(plugin Plugin) (err error)
	GetPlugin(pluginName string) Plugin
	Plugins() []Plugin

	RegisterEventHandler(context PluginName, handler EventHandler)
	FireEvent(event *Event) *Event
	Dispatch(player string, line string) bool
	RunSync(fn func())

	HasPermission(player string, permission string) bool
	Host() Host
	Config() config.Config
	DataDirectory() string
	DataFile(name string) string
	ServerStatus() (ServerStatus, bool)
}
