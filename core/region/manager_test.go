package region

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/store"
	"github.com/go-gl/mathgl/mgl64"
)

type testLogger struct {
	t     *testing.T
	lines int
}

func (l *testLogger) Println(a ...any) (int, error) {
	l.t.Log(a...)
	l.lines++
	return 0, nil
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.json")
	m := NewManager(store.New(path, true), &testLogger{t: t})
	if err := m.Load(); err != nil {
		t.Fatalf("load empty store: %v", err)
	}
	return m, path
}

func mustAdd(t *testing.T, m *Manager, r *Region) {
	t.Helper()
	ok, err := m.AddRegion(r)
	if err != nil {
		t.Fatalf("add %s: %v", r.Name, err)
	}
	if !ok {
		t.Fatalf("add %s: name already taken", r.Name)
	}
}

func at(world string, x, y, z float64) Position {
	return Position{World: world, Pos: mgl64.Vec3{x, y, z}}
}

func box(name string, a, b BlockPos, perms Permissions, priority bool) *Region {
	return New(name, "overworld", "steve", a, b, perms, priority)
}

func TestNoRegionAllowsEverything(t *testing.T) {
	m, _ := newTestManager(t)
	for _, flag := range Flags {
		if !m.IsAllowedAt(at("overworld", 0, 64, 0), flag) {
			t.Fatalf("%s denied outside of every region", flag)
		}
	}
}

func TestPriorityOverrides(t *testing.T) {
	m, _ := newTestManager(t)
	mustAdd(t, m, box("city", BlockPos{-100, 0, -100}, BlockPos{100, 255, 100}, DefaultPermissions(), false))
	mustAdd(t, m, box("plot", BlockPos{0, 0, 0}, BlockPos{10, 255, 10}, Permissions{Break: true, Place: true}, true))

	if !m.IsAllowedAt(at("overworld", 5, 64, 5), FlagBreak) {
		t.Fatal("priority region should allow break over the city")
	}
	if m.IsAllowedAt(at("overworld", 5, 64, 5), FlagPvP) {
		t.Fatal("priority region denies pvp, the city must not be consulted")
	}
	if m.IsAllowedAt(at("overworld", 50, 64, 50), FlagBreak) {
		t.Fatal("city denies break outside of the plot")
	}
}

func TestDenyWins(t *testing.T) {
	m, _ := newTestManager(t)
	mustAdd(t, m, box("a", BlockPos{0, 0, 0}, BlockPos{10, 10, 10}, Permissions{Break: true}, false))
	mustAdd(t, m, box("b", BlockPos{5, 0, 5}, BlockPos{15, 10, 15}, Permissions{}, false))
	if !m.IsAllowedAt(at("overworld", 1, 1, 1), FlagBreak) {
		t.Fatal("only a matches, break is allowed")
	}
	if m.IsAllowedAt(at("overworld", 7, 1, 7), FlagBreak) {
		t.Fatal("b denies break in the overlap")
	}

	// Two priority regions are combined the same way.
	mustAdd(t, m, box("p1", BlockPos{20, 0, 20}, BlockPos{30, 10, 30}, Permissions{Place: true}, true))
	mustAdd(t, m, box("p2", BlockPos{25, 0, 25}, BlockPos{35, 10, 35}, Permissions{}, true))
	if m.IsAllowedAt(at("overworld", 27, 1, 27), FlagPlace) {
		t.Fatal("p2 denies place in the priority overlap")
	}
	if !m.IsAllowedAt(at("overworld", 27, 1, 27), "fly") {
		t.Fatal("unknown flags must be allowed")
	}
}

func TestOtherWorldNotMatched(t *testing.T) {
	m, _ := newTestManager(t)
	mustAdd(t, m, box("a", BlockPos{0, 0, 0}, BlockPos{10, 10, 10}, Permissions{}, false))
	if !m.IsAllowedAt(at("nether", 1, 1, 1), FlagBreak) {
		t.Fatal("region of the overworld applied to the nether")
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	m, path := newTestManager(t)
	ok, err := m.AddRegion(box("a", BlockPos{0, 0, 0}, BlockPos{1, 1, 1}, Permissions{}, false))
	if !ok || err != nil {
		t.Fatalf("first add: %v %v", ok, err)
	}
	before, _ := os.ReadFile(path)
	ok, err = m.AddRegion(box("a", BlockPos{5, 5, 5}, BlockPos{6, 6, 6}, Permissions{Break: true}, true))
	if ok || err != nil {
		t.Fatalf("duplicate add: %v %v", ok, err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatal("duplicate add changed the store")
	}
	r, _ := m.Region("a")
	if r.Min != (BlockPos{0, 0, 0}) || r.Break {
		t.Fatalf("duplicate add changed the region: %v", r)
	}
}

func TestRenameKeepsBox(t *testing.T) {
	m, _ := newTestManager(t)
	mustAdd(t, m, box("old", BlockPos{1, 2, 3}, BlockPos{4, 5, 6}, Permissions{}, false))
	r, _ := m.Region("old")
	r.Name = "new"
	if err := m.UpdateRegion(r, "old"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Region("old"); ok {
		t.Fatal("old name still present")
	}
	got, ok := m.Region("new")
	if !ok || got.Min != (BlockPos{1, 2, 3}) || got.Max != (BlockPos{4, 5, 6}) {
		t.Fatalf("renamed region = %v", got)
	}
	if m.Len() != 1 {
		t.Fatalf("expected one region, got %d", m.Len())
	}
}

func TestRegionsAreCopies(t *testing.T) {
	m, _ := newTestManager(t)
	mustAdd(t, m, box("b", BlockPos{0, 0, 0}, BlockPos{1, 1, 1}, Permissions{}, false))
	mustAdd(t, m, box("a", BlockPos{0, 0, 0}, BlockPos{1, 1, 1}, Permissions{}, false))
	list := m.Regions()
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Fatalf("Regions() = %v", list)
	}
	list[0].Break = true
	if m.IsAllowedAt(at("overworld", 0, 0, 0), FlagBreak) {
		t.Fatal("mutating a snapshot changed the manager")
	}
	if here := m.RegionsAt(at("overworld", 0.5, 0.5, 0.5)); len(here) != 2 {
		t.Fatalf("RegionsAt = %v", here)
	}
	if err := m.RemoveRegion("missing"); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveRegion("a"); err != nil || m.Len() != 1 {
		t.Fatalf("remove: %v, %d left", err, m.Len())
	}
}

func TestBypassToggle(t *testing.T) {
	m, _ := newTestManager(t)
	on, err := m.ToggleBypass("Steve")
	if !on || err != nil {
		t.Fatalf("toggle on: %v %v", on, err)
	}
	if !m.HasBypass("steve") || !m.HasBypass("STEVE") {
		t.Fatal("bypass must ignore case")
	}
	on, err = m.ToggleBypass("sTeVe")
	if on || err != nil {
		t.Fatalf("toggle off: %v %v", on, err)
	}
	if m.HasBypass("Steve") {
		t.Fatal("bypass still set")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m, path := newTestManager(t)
	mustAdd(t, m, box("a", BlockPos{-3, 0, 9}, BlockPos{3, 20, -9}, Permissions{FireDamage: true, Place: true}, true))
	mustAdd(t, m, New("b", "the_end", "alex", BlockPos{0, 0, 0}, BlockPos{1, 1, 1}, DefaultPermissions(), false))
	if on, err := m.ToggleBypass("Alex"); !on || err != nil {
		t.Fatalf("toggle: %v %v", on, err)
	}

	loaded := NewManager(store.New(path, true), &testLogger{t: t})
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	want, got := m.Regions(), loaded.Regions()
	if len(got) != len(want) {
		t.Fatalf("loaded %d regions, want %d", len(got), len(want))
	}
	for i := range want {
		if *got[i] != *want[i] {
			t.Fatalf("region %d:\n%v\n%v", i, got[i], want[i])
		}
	}
	if !slices.Equal(loaded.Bypassing(), []string{"alex"}) {
		t.Fatalf("bypass = %v", loaded.Bypassing())
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("no backup kept: %v", err)
	}
}

func TestLoadTolerant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.json")
	doc := `{"regions":[{"name":"","world":"overworld"},{"name":"ok","world":"overworld","maxX":"4","allowPvp":0},42],"bypass":["Steve"]}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	log := &testLogger{t: t}
	m := NewManager(store.New(path, false), log)
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 1 {
		t.Fatalf("expected the empty name to be dropped, got %v", m.Regions())
	}
	r, _ := m.Region("ok")
	if r.Max[0] != 4 || r.PvP || !r.EnderPearl {
		t.Fatalf("region = %v", r)
	}
	if !m.HasBypass("steve") {
		t.Fatal("bypass not loaded")
	}
	if log.lines == 0 {
		t.Fatal("schema violations were not reported")
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.json")
	m := NewManager(store.New(path, false), &testLogger{t: t})
	if _, err := m.ToggleBypass("steve"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"regions":[`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); err == nil {
		t.Fatal("corrupt store loaded without error")
	}
	if m.Len() != 0 || m.HasBypass("steve") {
		t.Fatal("corrupt store must leave the manager empty")
	}
}

func TestWatchReloads(t *testing.T) {
	m, path := newTestManager(t)
	mustAdd(t, m, box("a", BlockPos{0, 0, 0}, BlockPos{1, 1, 1}, Permissions{}, false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan error, 8)
	if err := m.Watch(ctx, func(err error) { reloaded <- err }); err != nil {
		t.Fatal(err)
	}
	doc := `{"regions":[{"name":"edited","world":"overworld","minX":0,"minY":0,"minZ":0,"maxX":1,"maxY":1,"maxZ":1}],"bypass":[]}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-reloaded:
			if err != nil {
				continue
			}
			if _, ok := m.Region("edited"); ok {
				return
			}
		case <-deadline:
			t.Fatal("external edit not picked up")
		}
	}
}

func TestWatchKeepsStateOnBadContent(t *testing.T) {
	m, path := newTestManager(t)
	mustAdd(t, m, box("spawn", BlockPos{-10, 0, -10}, BlockPos{10, 255, 10}, Permissions{}, false))
	if _, err := m.ToggleBypass("Steve"); err != nil {
		t.Fatal(err)
	}
	spawn := at("overworld", 0, 64, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan error, 8)
	if err := m.Watch(ctx, func(err error) { reloaded <- err }); err != nil {
		t.Fatal(err)
	}

	for _, content := range []string{`{"regions":[{"name":"spawn"`, "  \n"} {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		select {
		case err := <-reloaded:
			if err == nil {
				t.Fatalf("%q reloaded without error", content)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%q was not picked up", content)
		}
		if m.Len() != 1 || m.IsAllowedAt(spawn, FlagBreak) || !m.HasBypass("steve") {
			t.Fatalf("%q changed the state: %d regions, bypass %v", content, m.Len(), m.Bypassing())
		}
	}

	// A later mutation saves the kept state, not an empty one.
	if _, err := m.ToggleBypass("Alex"); err != nil {
		t.Fatal(err)
	}
	loaded := NewManager(store.New(path, false), &testLogger{t: t})
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := loaded.Region("spawn"); !ok {
		t.Fatal("spawn lost after saving over the bad content")
	}
	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bak), `"spawn"`) {
		t.Fatalf("backup holds rejected content: %s", bak)
	}
}
