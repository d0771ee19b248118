package plugins

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/config"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
)

type fakeHost struct {
	lock     sync.Mutex
	lines    []string
	failTake bool
}

func (h *fakeHost) record(format string, a ...any) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.lines = append(h.lines, fmt.Sprintf(format, a...))
	return nil
}

func (h *fakeHost) Tell(player string, message string) error {
	return h.record("tell %s %s", player, textformat.Strip(message))
}

func (h *fakeHost) Broadcast(message string) error {
	return h.record("broadcast %s", textformat.Strip(message))
}

func (h *fakeHost) GiveItem(player string, item string, count int) error {
	return h.record("give %s %s %d", player, item, count)
}

func (h *fakeHost) TakeItem(player string, item string, count int) error {
	h.lock.Lock()
	fail := h.failTake
	h.lock.Unlock()
	if fail {
		return errors.New("not enough items")
	}
	return h.record("take %s %s %d", player, item, count)
}

func (h *fakeHost) SetBlock(world string, x, y, z int, block string) error {
	return h.record("setblock %s %d %d %d %s", world, x, y, z, block)
}

func (h *fakeHost) SetNameTag(player string, nameTag string) error {
	return h.record("nametag %s %s", player, nameTag)
}

func (h *fakeHost) SetPermissions(player string, permissions []string) error {
	return h.record("permissions %s %s", player, strings.Join(permissions, ","))
}

func (h *fakeHost) setFailTake(fail bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.failTake = fail
}

func (h *fakeHost) Lines() []string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return slices.Clone(h.lines)
}

func (h *fakeHost) Reset() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.lines = nil
}

func (h *fakeHost) Has(line string) bool {
	return slices.Contains(h.Lines(), line)
}

// Told reports whether player was sent a message containing text.
func (h *fakeHost) Told(player string, text string) bool {
	prefix := "tell " + player + " "
	return slices.ContainsFunc(h.Lines(), func(line string) bool {
		return strings.HasPrefix(line, prefix) && strings.Contains(line, text)
	})
}

func newTestManager(t *testing.T, configure func(*config.Config)) (*core.MinecraftPluginManager, *fakeHost) {
	t.Helper()
	cfg := config.Default()
	cfg.Daemon.DataDirectory = t.TempDir()
	cfg.Daemon.Operators = []string{"Admin"}
	cfg.Backup.Enabled = false
	if configure != nil {
		configure(&cfg)
	}
	host := &fakeHost{}
	pm := core.NewPluginManager(cfg, host)
	pm.SetOutput(io.Discard)
	t.Cleanup(pm.Shutdown)
	return pm, host
}
