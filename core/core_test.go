package core

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/config"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
)

type recordingHost struct {
	lock     sync.Mutex
	messages []string
}

func (h *recordingHost) record(format string, a ...any) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.messages = append(h.messages, fmt.Sprintf(format, a...))
	return nil
}

func (h *recordingHost) Tell(player string, message string) error {
	return h.record("tell %s %s", player, message)
}

func (h *recordingHost) Broadcast(message string) error {
	return h.record("broadcast %s", message)
}

func (h *recordingHost) GiveItem(player string, item string, count int) error {
	return h.record("give %s %s %d", player, item, count)
}

func (h *recordingHost) TakeItem(player string, item string, count int) error {
	return h.record("take %s %s %d", player, item, count)
}

func (h *recordingHost) SetBlock(world string, x, y, z int, block string) error {
	return h.record("setblock %s %d %d %d %s", world, x, y, z, block)
}

func (h *recordingHost) SetNameTag(player string, nameTag string) error {
	return h.record("nametag %s %s", player, nameTag)
}

func (h *recordingHost) SetPermissions(player string, permissions []string) error {
	return h.record("permissions %s %s", player, strings.Join(permissions, ","))
}

func (h *recordingHost) Messages() []string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return slices.Clone(h.messages)
}

type testPlugin struct {
	plugin.BasePlugin
	name   string
	grants map[string][]string
}

func (tp *testPlugin) Init(pm pluginabi.PluginManager) error {
	return tp.BasePlugin.Init(pm, tp)
}

func (tp *testPlugin) Name() string {
	return tp.name
}

func (tp *testPlugin) Permissions(player string) []string {
	return tp.grants[player]
}

func newTestManager(t *testing.T) (*MinecraftPluginManager, *recordingHost) {
	t.Helper()
	cfg := config.Default()
	cfg.Daemon.DataDirectory = t.TempDir()
	cfg.Daemon.Operators = []string{"Admin"}
	host := &recordingHost{}
	pm := NewPluginManager(cfg, host)
	pm.SetOutput(io.Discard)
	t.Cleanup(pm.Shutdown)
	return pm, host
}

func TestRegisterPluginTwice(t *testing.T) {
	pm, _ := newTestManager(t)
	if err := pm.RegisterPlugin(&testPlugin{name: "Test"}); err != nil {
		t.Fatal(err)
	}
	err := pm.RegisterPlugin(&testPlugin{name: "Test"})
	if !errors.Is(err, ErrPluginExists) {
		t.Fatalf("second register: %v", err)
	}
	names := []string{}
	for _, p := range pm.Plugins() {
		names = append(names, p.Name())
	}
	want := []string{"CommandProcessor", "SimpleCommand", "PlayerInfo", "Test"}
	if !slices.Equal(names, want) {
		t.Errorf("plugins %v, want %v", names, want)
	}
}

func TestFireEventOrder(t *testing.T) {
	pm, _ := newTestManager(t)
	var order []string
	pm.RegisterEventHandler(nil, func(e *pluginabi.Event) {
		order = append(order, "first")
	})
	pm.RegisterEventHandler(nil, func(e *pluginabi.Event) {
		order = append(order, "second")
		if e.Type == pluginabi.EventBlockBreak {
			e.Cancel()
		}
	})
	event := pm.FireEvent(&pluginabi.Event{Type: pluginabi.EventBlockBreak, Player: "Steve"})
	if !event.Cancelled() {
		t.Error("event not cancelled")
	}
	if !slices.Equal(order, []string{"first", "second"}) {
		t.Errorf("handlers ran as %v", order)
	}
}

func TestHasPermission(t *testing.T) {
	pm, _ := newTestManager(t)
	pm.RegisterPlugin(&testPlugin{name: "Grants", grants: map[string][]string{
		"Steve": {"rg.bypass"},
		"Boss":  {"*"},
	}})
	cases := []struct {
		player     string
		permission string
		want       bool
	}{
		{pluginabi.Console, "rg.admin", true},
		{"admin", "rg.admin", true},
		{"Steve", "rg.bypass", true},
		{"Steve", "rg.admin", false},
		{"Boss", "rank.admin", true},
		{"Alex", "rg.bypass", false},
	}
	for _, c := range cases {
		if got := pm.HasPermission(c.player, c.permission); got != c.want {
			t.Errorf("HasPermission(%s, %s) = %v", c.player, c.permission, got)
		}
	}
}

func TestDispatch(t *testing.T) {
	pm, host := newTestManager(t)
	tp := &testPlugin{name: "Echo"}
	pm.RegisterPlugin(tp)
	var got []string
	tp.RegisterCommand("Echo", "<words>", func(player string, args ...string) {
		got = append([]string{player}, args...)
	})
	if !pm.Dispatch("Steve", `/echo a "b c"`) {
		t.Fatal("echo not found")
	}
	if !slices.Equal(got, []string{"Steve", "a", "b c"}) {
		t.Errorf("args %v", got)
	}
	if pm.Dispatch("Steve", "nope") {
		t.Error("unknown command reported as found")
	}
	messages := host.Messages()
	if len(messages) != 1 || !strings.Contains(messages[0], "Unknown command") {
		t.Errorf("host messages %v", messages)
	}

	got = nil
	event := pm.FireEvent(&pluginabi.Event{Type: pluginabi.EventChat, Player: "Alex", Message: "!!echo hi"})
	if !event.Cancelled() || !slices.Equal(got, []string{"Alex", "hi"}) {
		t.Errorf("chat command: cancelled=%v args=%v", event.Cancelled(), got)
	}
}

func TestPlayerInfoTracksOnline(t *testing.T) {
	pm, _ := newTestManager(t)
	pm.FireEvent(&pluginabi.Event{Type: pluginabi.EventJoin, Player: "Steve", World: "overworld"})
	pm.FireEvent(&pluginabi.Event{Type: pluginabi.EventJoin, Player: "Alex", World: "overworld"})
	pm.FireEvent(&pluginabi.Event{Type: pluginabi.EventQuit, Player: "Steve"})
	pi := pm.GetPlugin("PlayerInfo").(*plugin.PlayerInfo)
	if online := pi.Online(); !slices.Equal(online, []string{"Alex"}) {
		t.Errorf("online %v", online)
	}
	if _, ok := pi.GetPlayerInfo("Steve"); !ok {
		t.Error("Steve forgotten after quit")
	}
}

func TestRunSyncAfterShutdown(t *testing.T) {
	pm, _ := newTestManager(t)
	pm.Shutdown()
	ran := false
	pm.RunSync(func() { ran = true })
	if ran {
		t.Error("task ran after shutdown")
	}
}
