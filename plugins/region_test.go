package plugins

import (
	"testing"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/region"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	insideSpawn  = mgl64.Vec3{5.5, 5, 5.5}
	outsideSpawn = mgl64.Vec3{20, 5, 5}
)

func TestRegionEnforce(t *testing.T) {
	pm, host := newTestManager(t, nil)
	rp := &RegionPlugin{}
	if err := pm.RegisterPlugin(rp); err != nil {
		t.Fatal(err)
	}
	pm.Dispatch("Admin", "rg create spawn 0 0 0 10 10 10 world=overworld")

	cases := []struct {
		name      string
		event     pluginabi.Event
		cancelled bool
	}{
		{"break inside", pluginabi.Event{Type: pluginabi.EventBlockBreak, Player: "Steve", World: "overworld", Pos: insideSpawn}, true},
		{"break outside", pluginabi.Event{Type: pluginabi.EventBlockBreak, Player: "Steve", World: "overworld", Pos: outsideSpawn}, false},
		{"break other world", pluginabi.Event{Type: pluginabi.EventBlockBreak, Player: "Steve", World: "nether", Pos: insideSpawn}, false},
		{"place inside", pluginabi.Event{Type: pluginabi.EventBlockPlace, Player: "Steve", World: "overworld", Pos: insideSpawn}, true},
		{"pvp inside", pluginabi.Event{Type: pluginabi.EventDamage, Player: "Steve", Target: "Alex", World: "overworld", Pos: insideSpawn}, false},
		{"fire inside", pluginabi.Event{Type: pluginabi.EventDamage, Target: "Alex", World: "overworld", Pos: insideSpawn, Cause: pluginabi.CauseFire}, true},
		{"fire tick inside", pluginabi.Event{Type: pluginabi.EventDamage, Target: "Alex", World: "overworld", Pos: insideSpawn, Cause: pluginabi.CauseFireTick}, true},
		{"lava outside", pluginabi.Event{Type: pluginabi.EventDamage, Target: "Alex", World: "overworld", Pos: outsideSpawn, Cause: pluginabi.CauseLava}, false},
		{"fall inside", pluginabi.Event{Type: pluginabi.EventDamage, Target: "Alex", World: "overworld", Pos: insideSpawn, Cause: "fall"}, false},
		{"pearl inside", pluginabi.Event{Type: pluginabi.EventItemUse, Player: "Steve", World: "overworld", Pos: insideSpawn, Item: "minecraft:ender_pearl"}, false},
		{"bread inside", pluginabi.Event{Type: pluginabi.EventItemUse, Player: "Steve", World: "overworld", Pos: insideSpawn, Item: "bread"}, false},
	}
	for _, c := range cases {
		e := c.event
		if got := pm.FireEvent(&e).Cancelled(); got != c.cancelled {
			t.Errorf("%s: cancelled = %v", c.name, got)
		}
	}
	if !host.Told("Steve", "You cannot do that here.") {
		t.Errorf("Steve not told off: %v", host.Lines())
	}
	if host.Told("Alex", "You cannot do that here.") {
		t.Error("burning player was told off")
	}

	pm.Dispatch("Admin", "rg edit spawn pvp=off pearl=no")
	pvp := pluginabi.Event{Type: pluginabi.EventDamage, Player: "Steve", Target: "Alex", World: "overworld", Pos: insideSpawn}
	if !pm.FireEvent(&pvp).Cancelled() {
		t.Error("pvp allowed after edit")
	}
	pearl := pluginabi.Event{Type: pluginabi.EventItemUse, Player: "Steve", World: "overworld", Pos: insideSpawn, Item: "Ender_Pearl"}
	if !pm.FireEvent(&pearl).Cancelled() {
		t.Error("pearl allowed after edit")
	}
}

func TestRegionPriority(t *testing.T) {
	pm, _ := newTestManager(t, nil)
	rp := &RegionPlugin{}
	if err := pm.RegisterPlugin(rp); err != nil {
		t.Fatal(err)
	}
	pm.Dispatch("Admin", "rg create spawn 0 0 0 10 10 10 world=overworld")
	pm.Dispatch("Admin", "rg create shop 4 4 4 6 6 6 break=on priority=on world=overworld")

	if !rp.Allowed("Steve", "overworld", insideSpawn, "break") {
		t.Error("priority region does not allow break")
	}
	if rp.Allowed("Steve", "overworld", insideSpawn, "place") {
		t.Error("priority region allows place")
	}
	if rp.Allowed("Steve", "overworld", mgl64.Vec3{1, 1, 1}, "break") {
		t.Error("spawn allows break outside of the shop")
	}
	matched := rp.Manager().RegionsAt(region.Position{World: "overworld", Pos: insideSpawn})
	if len(matched) != 2 {
		t.Errorf("regions at shop: %d", len(matched))
	}
}

func TestRegionBypass(t *testing.T) {
	pm, host := newTestManager(t, nil)
	rp := &RegionPlugin{}
	if err := pm.RegisterPlugin(rp); err != nil {
		t.Fatal(err)
	}
	pm.Dispatch("Admin", "rg create spawn 0 0 0 10 10 10 world=overworld")

	pm.Dispatch("Steve", "rgbypass")
	if !host.Told("Steve", "You do not have permission to do that.") {
		t.Errorf("Steve bypassed without permission: %v", host.Lines())
	}
	pm.Dispatch("Admin", "rgbypass Steve")
	if !rp.Manager().HasBypass("steve") {
		t.Fatal("bypass not enabled for Steve")
	}
	if !host.Told("Admin", "RGBypass enabled for Steve.") {
		t.Errorf("admin not told: %v", host.Lines())
	}
	e := pluginabi.Event{Type: pluginabi.EventBlockBreak, Player: "STEVE", World: "overworld", Pos: insideSpawn}
	if pm.FireEvent(&e).Cancelled() {
		t.Error("bypass holder cannot break")
	}
	if !rp.Allowed("Steve", "overworld", insideSpawn, "break") {
		t.Error("Allowed ignores bypass")
	}
	if rp.Allowed("Steve", "overworld", insideSpawn, "fire") {
		t.Error("bypass lets fire burn")
	}
	if !rp.Allowed("", "overworld", insideSpawn, "unknown") {
		t.Error("unknown flag denied")
	}

	pm.Dispatch("Admin", "rgbypass Steve")
	if rp.Manager().HasBypass("Steve") {
		t.Error("bypass not toggled off")
	}
}

func TestRegionCommands(t *testing.T) {
	pm, host := newTestManager(t, nil)
	rp := &RegionPlugin{}
	if err := pm.RegisterPlugin(rp); err != nil {
		t.Fatal(err)
	}
	pm.Dispatch("Admin", "rg create spawn 0 0 0 10 10 10")
	if !host.Told("Admin", "Region created: spawn (by Admin) world=overworld") {
		t.Errorf("create not reported: %v", host.Lines())
	}

	host.Reset()
	pm.Dispatch("Admin", "rg create spawn 1 1 1 2 2 2")
	if !host.Told("Admin", "A region with that name already exists.") {
		t.Errorf("duplicate accepted: %v", host.Lines())
	}
	pm.Dispatch("Admin", `rg create "  " 1 1 1 2 2 2`)
	if !host.Told("Admin", "Please enter a valid name.") {
		t.Errorf("blank name accepted: %v", host.Lines())
	}
	pm.Dispatch("Admin", "rg create bad 0 0 x 1 1 1")
	if !host.Told("Admin", `invalid coordinate "x"`) {
		t.Errorf("bad coordinate accepted: %v", host.Lines())
	}
	pm.Dispatch("Admin", "rg create bad 0 0 0 1 1 1 glide=on")
	if !host.Told("Admin", `unknown option "glide"`) {
		t.Errorf("unknown option accepted: %v", host.Lines())
	}
	if rp.Manager().Len() != 1 {
		t.Fatalf("regions: %d", rp.Manager().Len())
	}

	pm.FireEvent(&pluginabi.Event{Type: pluginabi.EventJoin, Player: "Admin", World: "nether", Pos: mgl64.Vec3{100.5, 64, -3.5}})
	pm.Dispatch("Admin", "rg create home ~ ~ ~ ~5 ~-4 ~2")
	home, ok := rp.Manager().Region("home")
	if !ok {
		t.Fatalf("home not created: %v", host.Lines())
	}
	if home.World != "nether" || home.Min != (region.BlockPos{100, 60, -4}) || home.Max != (region.BlockPos{105, 64, -2}) {
		t.Errorf("home = %s", home)
	}

	host.Reset()
	pm.Dispatch("Admin", "rg here")
	if !host.Told("Admin", "[100,64,-4]") || !host.Told("Admin", "in home") {
		t.Errorf("here: %v", host.Lines())
	}

	pm.Dispatch("Admin", "rg edit home name=spawn")
	if !host.Told("Admin", "A region with that name already exists.") {
		t.Errorf("rename onto spawn accepted: %v", host.Lines())
	}
	pm.Dispatch("Admin", "rg edit home name=house break=on")
	house, ok := rp.Manager().Region("house")
	if !ok || !house.Break {
		t.Fatalf("rename failed: %v", host.Lines())
	}
	if _, ok := rp.Manager().Region("home"); ok {
		t.Error("old name kept after rename")
	}

	host.Reset()
	pm.Dispatch("Admin", "rg list")
	if !host.Told("Admin", "Regions (2):") {
		t.Errorf("list: %v", host.Lines())
	}
	pm.Dispatch("Admin", "rg info spawn")
	if !host.Told("Admin", "volume=1331") {
		t.Errorf("info: %v", host.Lines())
	}
	pm.Dispatch("Admin", "rg delete nope")
	if !host.Told("Admin", "No region named nope.") {
		t.Errorf("delete unknown: %v", host.Lines())
	}
	pm.Dispatch("Admin", "rg delete house")
	if rp.Manager().Len() != 1 {
		t.Errorf("regions after delete: %d", rp.Manager().Len())
	}

	host.Reset()
	pm.Dispatch("Steve", "rg list")
	if !host.Told("Steve", "You do not have permission to do that.") {
		t.Errorf("Steve listed regions: %v", host.Lines())
	}
}

func TestRegionReload(t *testing.T) {
	pm, _ := newTestManager(t, nil)
	rp := &RegionPlugin{}
	if err := pm.RegisterPlugin(rp); err != nil {
		t.Fatal(err)
	}
	pm.Dispatch("Admin", "rg create spawn 0 0 0 10 10 10")
	pm.Dispatch("Admin", "rgbypass Steve")
	if err := rp.Reload(); err != nil {
		t.Fatal(err)
	}
	if rp.Manager().Len() != 1 || !rp.Manager().HasBypass("Steve") {
		t.Errorf("reload lost data: %d regions, bypass %v", rp.Manager().Len(), rp.Manager().Bypassing())
	}
	records := rp.RegionRecords()
	if len(records) != 1 || records[0].Name != "spawn" {
		t.Errorf("records %+v", records)
	}
}

func TestParseCoord(t *testing.T) {
	cases := []struct {
		value string
		want  int
		ok    bool
	}{
		{"12", 12, true},
		{"-3", -3, true},
		{"~", 50, true},
		{"~4", 54, true},
		{"~-60", -10, true},
		{"x", 0, false},
		{"~y", 0, false},
	}
	for _, c := range cases {
		got, err := parseCoord(c.value, 50)
		if (err == nil) != c.ok || got != c.want {
			t.Errorf("parseCoord(%q) = %d, %v", c.value, got, err)
		}
	}
}
