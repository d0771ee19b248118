// Copyright 2024 bbaa
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugins

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/region"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/store"
	"github.com/fatih/color"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

const (
	RegionPlugin_AdminPermission  = "rg.admin"
	RegionPlugin_BypassPermission = "rg.bypass"
)

var (
	regionDenied = []textformat.Message{{Text: "You cannot do that here.", Color: textformat.Red}}
	burnCauses   = []string{pluginabi.CauseFire, pluginabi.CauseFireTick, pluginabi.CauseLava}
)

// RegionPlugin protects regions against the players of the game server.
type RegionPlugin struct {
	plugin.BasePlugin
	manager     *region.Manager
	watchCancel context.CancelFunc
}

func (rp *RegionPlugin) DisplayName() string {
	return "区域保护"
}

func (rp *RegionPlugin) Name() string {
	return "RegionPlugin"
}

func (rp *RegionPlugin) Init(pm pluginabi.PluginManager) (err error) {
	err = rp.BasePlugin.Init(pm, rp)
	if err != nil {
		return err
	}
	rp.manager = region.NewManager(store.New(pm.DataFile("regions.json"), true), rp)
	if err := rp.manager.Load(); err != nil {
		rp.Println(color.RedString("加载区域数据失败，以空数据启动: "), err)
	}
	rp.Println(color.YellowString("已加载 "), color.GreenString("%d", rp.manager.Len()), color.YellowString(" 个区域"))
	rp.RegisterEventHandler(rp.enforce)
	rp.RegisterCommand("rg", "create|edit|delete|list|info|here", rp.Cli)
	rp.RegisterCommand("rgbypass", "[player]", rp.bypass)
	return nil
}

// Manager returns the region store backing the plugin.
func (rp *RegionPlugin) Manager() *region.Manager {
	return rp.manager
}

func (rp *RegionPlugin) Start() {
	if rp.watchCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	err := rp.manager.Watch(ctx, func(err error) {
		if err != nil {
			rp.Println(color.RedString("区域文件已被外部修改，重新加载失败，保留当前区域: "), err)
			return
		}
		rp.Println(color.YellowString("区域文件已被外部修改，重新加载 "), color.GreenString("%d", rp.manager.Len()), color.YellowString(" 个区域"))
	})
	if err != nil {
		cancel()
		rp.Println(color.RedString("无法监听区域文件: "), err)
		return
	}
	rp.watchCancel = cancel
}

func (rp *RegionPlugin) Pause() {
	if rp.watchCancel != nil {
		rp.watchCancel()
		rp.watchCancel = nil
	}
	if err := rp.manager.Save(); err != nil {
		rp.Println(color.RedString("保存区域数据失败: "), err)
	}
}

func (rp *RegionPlugin) Reload() error {
	return rp.manager.Load()
}

// Allowed reports whether player may do flag at pos. Bypass holders may do anything
// except burn, which no player causes.
func (rp *RegionPlugin) Allowed(player string, world string, pos mgl64.Vec3, flag string) bool {
	f, ok := region.ParseFlag(flag)
	if !ok {
		return true
	}
	if f != region.FlagFire && player != "" && rp.manager.HasBypass(player) {
		return true
	}
	return rp.manager.IsAllowedAt(region.Position{World: world, Pos: pos}, f)
}

func (rp *RegionPlugin) RegionRecords() []region.Record {
	return lo.Map(rp.manager.Regions(), func(r *region.Region, _ int) region.Record {
		return r.Record()
	})
}

func itemID(item string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(item)), "minecraft:")
}

func (rp *RegionPlugin) enforce(event *pluginabi.Event) {
	pos := region.Position{World: event.World, Pos: event.Pos}
	switch event.Type {
	case pluginabi.EventBlockBreak:
		rp.guard(event, pos, region.FlagBreak)
	case pluginabi.EventBlockPlace:
		rp.guard(event, pos, region.FlagPlace)
	case pluginabi.EventDamage:
		if event.Player != "" {
			if event.Target != "" {
				rp.guard(event, pos, region.FlagPvP)
			}
			return
		}
		if slices.Contains(burnCauses, event.Cause) && !rp.manager.IsAllowedAt(pos, region.FlagFire) {
			event.Cancel()
		}
	case pluginabi.EventItemUse:
		if itemID(event.Item) == "ender_pearl" {
			rp.guard(event, pos, region.FlagPearl)
		}
	}
}

func (rp *RegionPlugin) guard(event *pluginabi.Event, pos region.Position, flag region.Flag) {
	if event.Player == "" || rp.manager.HasBypass(event.Player) {
		return
	}
	if !rp.manager.IsAllowedAt(pos, flag) {
		event.Cancel()
		rp.Tell(event.Player, regionDenied)
	}
}

func (rp *RegionPlugin) bypass(player string, args ...string) {
	if !rp.RequirePermission(player, RegionPlugin_BypassPermission) {
		return
	}
	target := player
	if len(args) > 0 && rp.HasPermission(player, RegionPlugin_AdminPermission) {
		target = args[0]
	}
	if target == pluginabi.Console {
		rp.usage(player, "rgbypass <player>")
		return
	}
	enabled, err := rp.manager.ToggleBypass(target)
	if err != nil {
		rp.TellError(player, err)
		return
	}
	rp.Println(color.GreenString(target), color.YellowString(" 区域绕过: "), color.MagentaString("%v", enabled))
	if enabled {
		rp.Tell(player, []textformat.Message{{Text: "RGBypass enabled for " + target + ".", Color: textformat.Green}})
	} else {
		rp.Tell(player, []textformat.Message{{Text: "RGBypass disabled for " + target + ".", Color: textformat.Red}})
	}
}

func (rp *RegionPlugin) usage(player string, usage string) {
	rp.Tell(player, []textformat.Message{
		{Text: "Usage: ", Color: textformat.Yellow},
		{Text: usage, Color: textformat.Gold},
	})
}

func (rp *RegionPlugin) Cli(player string, args ...string) {
	if !rp.RequirePermission(player, RegionPlugin_AdminPermission) {
		return
	}
	if len(args) == 0 {
		rp.usage(player, "rg create|edit|delete|list|info|here")
		return
	}
	switch strings.ToLower(args[0]) {
	case "create":
		rp.create(player, args[1:]...)
	case "edit":
		rp.edit(player, args[1:]...)
	case "delete", "remove":
		rp.delete(player, args[1:]...)
	case "list":
		rp.list(player)
	case "info":
		rp.info(player, args[1:]...)
	case "here":
		rp.here(player)
	default:
		rp.usage(player, "rg create|edit|delete|list|info|here")
	}
}

// regionDraft is a region being built from command arguments. The corners are kept
// apart so that a draft can move one corner of an existing region.
type regionDraft struct {
	name     string
	world    string
	corners  [2]region.BlockPos
	perms    region.Permissions
	priority bool
}

func (d *regionDraft) build(creator string) *region.Region {
	return region.New(d.name, d.world, creator, d.corners[0], d.corners[1], d.perms, d.priority)
}

var cornerKeys = map[string][2]int{
	"x1": {0, 0}, "y1": {0, 1}, "z1": {0, 2},
	"x2": {1, 0}, "y2": {1, 1}, "z2": {1, 2},
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "yes", "allow":
		return true, nil
	case "off", "no", "deny":
		return false, nil
	}
	return strconv.ParseBool(value)
}

// parseCoord reads a block coordinate. "~" and "~N" are relative to base.
func parseCoord(value string, base int) (int, error) {
	if rest, ok := strings.CutPrefix(value, "~"); ok {
		if rest == "" {
			return base, nil
		}
		offset, err := strconv.Atoi(rest)
		if err != nil {
			return 0, fmt.Errorf("invalid coordinate %q", value)
		}
		return base + offset, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", value)
	}
	return n, nil
}

// origin is the block the player stands on, used for relative coordinates.
func (rp *RegionPlugin) origin(player string) (string, region.BlockPos, bool) {
	loc, ok := rp.GetPlayerLocation(player)
	if !ok {
		return "", region.BlockPos{}, false
	}
	return loc.World, region.Position{World: loc.World, Pos: loc.Pos}.Cell(), true
}

func (rp *RegionPlugin) applyOptions(player string, draft *regionDraft, options []string) error {
	_, base, _ := rp.origin(player)
	for _, option := range options {
		key, value, ok := strings.Cut(option, "=")
		if !ok || value == "" {
			return fmt.Errorf("expected key=value, got %q", option)
		}
		key = strings.ToLower(key)
		if idx, ok := cornerKeys[key]; ok {
			n, err := parseCoord(value, base[idx[1]])
			if err != nil {
				return err
			}
			draft.corners[idx[0]][idx[1]] = n
			continue
		}
		switch key {
		case "name":
			draft.name = strings.TrimSpace(value)
			continue
		case "world":
			draft.world = value
			continue
		case "priority":
			b, err := parseSwitch(value)
			if err != nil {
				return fmt.Errorf("invalid value %q for priority", value)
			}
			draft.priority = b
			continue
		}
		flag, ok := region.ParseFlag(key)
		if !ok {
			return fmt.Errorf("unknown option %q", key)
		}
		b, err := parseSwitch(value)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s", value, flag)
		}
		setFlag(&draft.perms, flag, b)
	}
	return nil
}

func setFlag(perms *region.Permissions, flag region.Flag, allowed bool) {
	r := region.Region{Permissions: *perms}
	r.Set(flag, allowed)
	*perms = r.Permissions
}

func (rp *RegionPlugin) create(player string, args ...string) {
	if len(args) < 7 {
		rp.usage(player, "rg create <name> <x1> <y1> <z1> <x2> <y2> <z2> [fire|pearl|pvp|break|place|priority=on|off] [world=<world>]")
		return
	}
	draft := &regionDraft{name: strings.TrimSpace(args[0]), perms: region.DefaultPermissions()}
	world, base, ok := rp.origin(player)
	if ok {
		draft.world = world
	} else {
		draft.world = "overworld"
	}
	for i, value := range args[1:7] {
		n, err := parseCoord(value, base[i%3])
		if err != nil {
			rp.TellError(player, err)
			return
		}
		draft.corners[i/3][i%3] = n
	}
	if err := rp.applyOptions(player, draft, args[7:]); err != nil {
		rp.TellError(player, err)
		return
	}
	if draft.name == "" {
		rp.Tell(player, []textformat.Message{{Text: "Please enter a valid name.", Color: textformat.Red}})
		return
	}
	r := draft.build(player)
	added, err := rp.manager.AddRegion(r)
	if err != nil {
		rp.TellError(player, err)
		return
	}
	if !added {
		rp.Tell(player, []textformat.Message{{Text: "A region with that name already exists.", Color: textformat.Red}})
		return
	}
	rp.Println(color.GreenString(player), color.YellowString(" 创建了区域 "), color.BlueString(r.String()))
	rp.Tell(player, []textformat.Message{
		{Text: "Region created: ", Color: textformat.Green},
		{Text: r.String(), Color: textformat.White},
	})
}

func (rp *RegionPlugin) edit(player string, args ...string) {
	if len(args) < 2 {
		rp.usage(player, "rg edit <name> [name=..] [x1..z2=..] [world=..] [fire|pearl|pvp|break|place|priority=on|off]")
		return
	}
	existing, ok := rp.manager.Region(args[0])
	if !ok {
		rp.noRegion(player, args[0])
		return
	}
	draft := &regionDraft{
		name:     existing.Name,
		world:    existing.World,
		corners:  [2]region.BlockPos{existing.Min, existing.Max},
		perms:    existing.Permissions,
		priority: existing.Priority,
	}
	if err := rp.applyOptions(player, draft, args[1:]); err != nil {
		rp.TellError(player, err)
		return
	}
	if draft.name == "" {
		rp.Tell(player, []textformat.Message{{Text: "Please enter a valid name.", Color: textformat.Red}})
		return
	}
	if draft.name != existing.Name {
		if _, taken := rp.manager.Region(draft.name); taken {
			rp.Tell(player, []textformat.Message{{Text: "A region with that name already exists.", Color: textformat.Red}})
			return
		}
	}
	r := draft.build(existing.Creator)
	if err := rp.manager.UpdateRegion(r, existing.Name); err != nil {
		rp.TellError(player, err)
		return
	}
	rp.Println(color.GreenString(player), color.YellowString(" 修改了区域 "), color.BlueString(r.String()))
	rp.Tell(player, []textformat.Message{
		{Text: "Region updated: ", Color: textformat.Green},
		{Text: r.String(), Color: textformat.White},
	})
}

func (rp *RegionPlugin) noRegion(player string, name string) {
	rp.Tell(player, []textformat.Message{
		{Text: "No region named ", Color: textformat.Red},
		{Text: name, Color: textformat.Yellow},
		{Text: ".", Color: textformat.Red},
	})
}

func (rp *RegionPlugin) delete(player string, args ...string) {
	if len(args) < 1 {
		rp.usage(player, "rg delete <name>")
		return
	}
	if _, ok := rp.manager.Region(args[0]); !ok {
		rp.noRegion(player, args[0])
		return
	}
	if err := rp.manager.RemoveRegion(args[0]); err != nil {
		rp.TellError(player, err)
		return
	}
	rp.Println(color.GreenString(player), color.YellowString(" 删除了区域 "), color.BlueString(args[0]))
	rp.Tell(player, []textformat.Message{{Text: "Region " + args[0] + " deleted.", Color: textformat.Green}})
}

func (rp *RegionPlugin) list(player string) {
	regions := rp.manager.Regions()
	if len(regions) == 0 {
		rp.Tell(player, []textformat.Message{{Text: "No regions.", Color: textformat.Gray}})
		return
	}
	msg := []textformat.Message{{Text: fmt.Sprintf("Regions (%d):", len(regions)), Color: textformat.Aqua}}
	for _, r := range regions {
		msg = append(msg,
			textformat.Message{Text: "\n" + r.Name, Color: textformat.Green},
			textformat.Message{Text: " (" + r.Creator + ")", Color: textformat.Gray},
			textformat.Message{Text: " " + plugin.GetWorldName(r.World), Color: textformat.Yellow},
		)
	}
	rp.Tell(player, msg)
}

func (rp *RegionPlugin) info(player string, args ...string) {
	if len(args) < 1 {
		rp.usage(player, "rg info <name>")
		return
	}
	r, ok := rp.manager.Region(args[0])
	if !ok {
		rp.noRegion(player, args[0])
		return
	}
	rp.Tell(player, []textformat.Message{
		{Text: r.String(), Color: textformat.White},
		{Text: fmt.Sprintf(" volume=%d", r.Volume()), Color: textformat.Gray},
	})
}

func (rp *RegionPlugin) here(player string) {
	loc, ok := rp.GetPlayerLocation(player)
	if !ok {
		rp.Tell(player, []textformat.Message{{Text: "Your position is unknown.", Color: textformat.Red}})
		return
	}
	pos := region.Position{World: loc.World, Pos: loc.Pos}
	cell := pos.Cell()
	msg := []textformat.Message{
		{Text: plugin.GetWorldName(loc.World), Color: textformat.Yellow},
		{Text: " [" + cell.String() + "]", Color: textformat.Aqua},
	}
	matched := rp.manager.RegionsAt(pos)
	if len(matched) == 0 {
		msg = append(msg, textformat.Message{Text: " no region", Color: textformat.Gray})
	} else {
		msg = append(msg, textformat.Message{
			Text: " in " + strings.Join(lo.Map(matched, func(r *region.Region, _ int) string {
				if r.Priority {
					return r.Name + "*"
				}
				return r.Name
			}), ", "),
			Color: textformat.Green,
		})
	}
	for _, flag := range region.Flags {
		c := textformat.Red
		if rp.manager.IsAllowedAt(pos, flag) {
			c = textformat.Green
		}
		msg = append(msg, textformat.Message{Text: " " + string(flag), Color: c})
	}
	rp.Tell(player, msg)
}
