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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/region"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/roulette"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/store"
	"github.com/fatih/color"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jonboulle/clockwork"
)

const (
	RoulettePlugin_AdminPermission = "roulette.admin"
	RoulettePlugin_TableBlock      = "diamond_block"
	RoulettePlugin_RedBlock        = "red_wool"
	RoulettePlugin_BlackBlock      = "black_wool"
)

// RoulettePlugin runs the diamond roulette tables. A player touches a table, picks a
// number and a stake, and the table flashes red and black until the wheel stops.
type RoulettePlugin struct {
	plugin.BasePlugin
	// Clock and Wheel may be set before registration; real ones are used otherwise.
	Clock   clockwork.Clock
	Wheel   *roulette.Wheel
	tables  *roulette.Tables
	cron    gocron.Scheduler
	pending map[string]string
	lock    sync.Mutex
}

func (rp *RoulettePlugin) DisplayName() string {
	return "轮盘赌"
}

func (rp *RoulettePlugin) Name() string {
	return "RoulettePlugin"
}

func (rp *RoulettePlugin) Init(pm pluginabi.PluginManager) (err error) {
	err = rp.BasePlugin.Init(pm, rp)
	if err != nil {
		return err
	}
	if rp.Clock == nil {
		rp.Clock = clockwork.NewRealClock()
	}
	if rp.Wheel == nil {
		rp.Wheel = roulette.NewWheel(nil)
	}
	rp.pending = make(map[string]string)
	rp.tables = roulette.NewTables(store.New(pm.DataFile("tables.json"), false))
	if err := rp.tables.Load(); err != nil {
		rp.Println(color.RedString("加载轮盘数据失败: "), err)
	}
	rp.cron, err = gocron.NewScheduler(gocron.WithClock(rp.Clock))
	if err != nil {
		return err
	}
	rp.RegisterEventHandler(rp.playerEvent)
	rp.RegisterCommand("adminroulette", "[x y z [world]]", rp.adminCli)
	rp.RegisterCommand("roulette", "bet <number> <stake> | list | remove [x y z [world]]", rp.Cli)
	return nil
}

// Tables returns the table registry backing the plugin.
func (rp *RoulettePlugin) Tables() *roulette.Tables {
	return rp.tables
}

func (rp *RoulettePlugin) Start() {
	rp.cron.Start()
}

// Pause refunds the spins still running, since their jobs stop with the scheduler.
func (rp *RoulettePlugin) Pause() {
	rp.cron.StopJobs()
	for _, session := range rp.tables.Sessions() {
		if _, ok := rp.tables.Finish(session.Table.Key(), session.ID); !ok {
			continue
		}
		rp.restoreTable(session.Table)
		rp.payout(session.Player, session.Bet.Stake)
		rp.Tell(session.Player, []textformat.Message{{Text: "The roulette was stopped, your stake is refunded.", Color: textformat.Yellow}})
	}
	if err := rp.tables.Save(); err != nil {
		rp.Println(color.RedString("保存轮盘数据失败: "), err)
	}
}

func (rp *RoulettePlugin) Reload() error {
	return rp.tables.Load()
}

func (rp *RoulettePlugin) item() string {
	return rp.Config().Roulette.Item
}

// blockAhead returns the block one step in front of a player looking along yaw.
func blockAhead(pos mgl64.Vec3, yaw float64) region.BlockPos {
	rad := mgl64.DegToRad(yaw)
	dx := int(math.Round(-math.Sin(rad)))
	dz := int(math.Round(math.Cos(rad)))
	if dx == 0 && dz == 0 {
		dz = 1
	}
	cell := region.Position{Pos: pos}.Cell()
	return region.BlockPos{cell[0] + dx, cell[1], cell[2] + dz}
}

// target resolves the block named by "x y z [world]", or the block in front of player
// when args is empty.
func (rp *RoulettePlugin) target(player string, args []string) (string, region.BlockPos, error) {
	loc, located := rp.GetPlayerLocation(player)
	if len(args) == 0 {
		if !located {
			return "", region.BlockPos{}, errors.New("your position is unknown, give x y z [world]")
		}
		return loc.World, blockAhead(loc.Pos, loc.Yaw), nil
	}
	if len(args) < 3 {
		return "", region.BlockPos{}, errors.New("expected x y z [world]")
	}
	var pos region.BlockPos
	for i := range 3 {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return "", region.BlockPos{}, fmt.Errorf("invalid coordinate %q", args[i])
		}
		pos[i] = n
	}
	world := "overworld"
	if located {
		world = loc.World
	}
	if len(args) > 3 {
		world = args[3]
	}
	return world, pos, nil
}

func (rp *RoulettePlugin) adminCli(player string, args ...string) {
	if !rp.RequirePermission(player, RoulettePlugin_AdminPermission) {
		return
	}
	world, pos, err := rp.target(player, args)
	if err != nil {
		rp.TellError(player, err)
		return
	}
	table := roulette.Table{World: world, X: pos[0], Y: pos[1], Z: pos[2], Creator: player}
	added, err := rp.tables.Add(table)
	if err != nil {
		rp.TellError(player, err)
		return
	}
	if !added {
		rp.Tell(player, []textformat.Message{{Text: "A roulette table already stands there.", Color: textformat.Red}})
		return
	}
	rp.restoreTable(table)
	rp.Println(color.GreenString(player), color.YellowString(" 放置了轮盘 "), color.BlueString(table.Key()))
	rp.Tell(player, []textformat.Message{{Text: "Roulette table created in front of you.", Color: textformat.Green}})
}

func (rp *RoulettePlugin) restoreTable(table roulette.Table) {
	if err := rp.Host().SetBlock(table.World, table.X, table.Y, table.Z, RoulettePlugin_TableBlock); err != nil {
		rp.Println(color.RedString("无法放置轮盘方块: "), err)
	}
}

func (rp *RoulettePlugin) playerEvent(event *pluginabi.Event) {
	switch event.Type {
	case pluginabi.EventInteract:
		rp.interact(event)
	case pluginabi.EventQuit:
		rp.lock.Lock()
		delete(rp.pending, event.Player)
		rp.lock.Unlock()
	}
}

func (rp *RoulettePlugin) interact(event *pluginabi.Event) {
	cell := region.Position{World: event.World, Pos: event.Pos}.Cell()
	key := roulette.Key(event.World, cell[0], cell[1], cell[2])
	if _, ok := rp.tables.Table(key); !ok || event.Player == "" {
		return
	}
	event.Cancel()
	if rp.tables.Busy(key) {
		rp.Tell(event.Player, []textformat.Message{{Text: "The roulette is in use, please wait.", Color: textformat.Yellow}})
		return
	}
	rp.lock.Lock()
	rp.pending[event.Player] = key
	rp.lock.Unlock()
	rp.Tell(event.Player, []textformat.Message{
		{Text: "Choose a number from 1 to 30 ", Color: textformat.Aqua, Bold: true},
		{Text: "(odd ", Color: textformat.Gray},
		{Text: "red", Color: textformat.Red},
		{Text: ", even ", Color: textformat.Gray},
		{Text: "black", Color: textformat.Dark_Gray},
		{Text: ") and a stake of ", Color: textformat.Gray},
		{Text: "1, 5 or 10 " + rp.item(), Color: textformat.Gold},
		{Text: ": roulette bet <number> <stake>", Color: textformat.Yellow},
	})
}

func (rp *RoulettePlugin) Cli(player string, args ...string) {
	if len(args) == 0 {
		rp.Tell(player, []textformat.Message{{Text: "Usage: roulette bet <number> <stake> | list | remove [x y z [world]]", Color: textformat.Yellow}})
		return
	}
	switch strings.ToLower(args[0]) {
	case "bet":
		rp.bet(player, args[1:]...)
	case "list":
		if !rp.RequirePermission(player, RoulettePlugin_AdminPermission) {
			return
		}
		rp.list(player)
	case "remove":
		if !rp.RequirePermission(player, RoulettePlugin_AdminPermission) {
			return
		}
		rp.remove(player, args[1:]...)
	default:
		rp.Tell(player, []textformat.Message{{Text: "Usage: roulette bet <number> <stake> | list | remove [x y z [world]]", Color: textformat.Yellow}})
	}
}

func (rp *RoulettePlugin) bet(player string, args ...string) {
	rp.lock.Lock()
	key, ok := rp.pending[player]
	rp.lock.Unlock()
	if !ok {
		rp.Tell(player, []textformat.Message{{Text: "Touch a roulette table first.", Color: textformat.Red}})
		return
	}
	if len(args) < 2 {
		rp.Tell(player, []textformat.Message{{Text: "Usage: roulette bet <number> <stake>", Color: textformat.Yellow}})
		return
	}
	number, err1 := strconv.Atoi(args[0])
	stake, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		rp.Tell(player, []textformat.Message{{Text: "Usage: roulette bet <number> <stake>", Color: textformat.Yellow}})
		return
	}
	bet, err := roulette.NewBet(number, stake)
	if err != nil {
		rp.TellError(player, err)
		return
	}
	if rp.tables.Busy(key) {
		rp.Tell(player, []textformat.Message{{Text: "The roulette is in use, please wait.", Color: textformat.Yellow}})
		return
	}
	if err := rp.Host().TakeItem(player, rp.item(), bet.Stake); err != nil {
		rp.Tell(player, []textformat.Message{{Text: "Not enough " + rp.item() + ".", Color: textformat.Red}})
		return
	}
	session, err := rp.tables.Begin(key, player, bet, rp.Clock.Now())
	if err != nil {
		rp.payout(player, bet.Stake)
		rp.TellError(player, err)
		return
	}
	rp.lock.Lock()
	delete(rp.pending, player)
	rp.lock.Unlock()
	rp.Println(color.GreenString(player), color.YellowString(" 在 "), color.BlueString(key), color.YellowString(" 下注 "), color.MagentaString("%d", bet.Number), color.YellowString(" x "), color.MagentaString("%d", bet.Stake))
	rp.Tell(player, []textformat.Message{
		{Text: "The wheel is spinning... ", Color: textformat.Aqua},
		{Text: fmt.Sprintf("number %d (%s), stake %d", bet.Number, bet.Color, bet.Stake), Color: textformat.Gold},
	})
	rp.spin(session)
}

// spin flashes the table until the spin time is over, then settles the session. Both
// jobs hand their work to the command queue.
func (rp *RoulettePlugin) spin(session roulette.Session) {
	table := session.Table
	settled := false
	red := true
	animation, err := rp.cron.NewJob(
		gocron.DurationJob(rp.Config().AnimationInterval()),
		gocron.NewTask(func() {
			rp.RunSync(func() {
				if settled {
					return
				}
				block := RoulettePlugin_BlackBlock
				if red {
					block = RoulettePlugin_RedBlock
				}
				red = !red
				rp.Host().SetBlock(table.World, table.X, table.Y, table.Z, block)
			})
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		rp.Println(color.RedString("无法创建轮盘动画: "), err)
	}
	_, err = rp.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(rp.Clock.Now().Add(rp.Config().SpinDuration()))),
		gocron.NewTask(func() {
			if animation != nil {
				rp.cron.RemoveJob(animation.ID())
			}
			rp.RunSync(func() {
				settled = true
				rp.resolve(session)
			})
		}),
	)
	if err != nil {
		rp.Println(color.RedString("无法创建轮盘结算任务，立即结算: "), err)
		if animation != nil {
			rp.cron.RemoveJob(animation.ID())
		}
		settled = true
		rp.resolve(session)
	}
}

// resolve draws the winning number and pays the player of session.
func (rp *RoulettePlugin) resolve(session roulette.Session) {
	if _, ok := rp.tables.Finish(session.Table.Key(), session.ID); !ok {
		return
	}
	rp.restoreTable(session.Table)
	result := roulette.Resolve(session.Bet, rp.Wheel.Spin())
	rp.Println(color.GreenString(session.Player), color.YellowString(" 轮盘结果 "), color.MagentaString("%d", result.Winning), color.YellowString(" "), color.BlueString(result.Outcome.String()))
	rp.payout(session.Player, result.Payout)
	switch result.Outcome {
	case roulette.Jackpot:
		rp.Tell(session.Player, []textformat.Message{{Text: fmt.Sprintf("Jackpot! You picked the right number and win x3: %d %s.", result.Payout, rp.item()), Color: textformat.Green}})
	case roulette.ColorWon:
		rp.Tell(session.Player, []textformat.Message{{Text: fmt.Sprintf("You picked the right color and win x2: %d %s.", result.Payout, rp.item()), Color: textformat.Aqua}})
	default:
		rp.Tell(session.Player, []textformat.Message{{Text: fmt.Sprintf("You lost, the number drawn is %d.", result.Winning), Color: textformat.Red}})
	}
}

func (rp *RoulettePlugin) payout(player string, amount int) {
	if amount <= 0 {
		return
	}
	if err := rp.Host().GiveItem(player, rp.item(), amount); err != nil {
		rp.Println(color.RedString("无法向 "), color.GreenString(player), color.RedString(" 支付 %d %s: ", amount, rp.item()), err)
	}
}

func (rp *RoulettePlugin) list(player string) {
	tables := rp.tables.List()
	if len(tables) == 0 {
		rp.Tell(player, []textformat.Message{{Text: "No roulette tables.", Color: textformat.Gray}})
		return
	}
	msg := []textformat.Message{{Text: fmt.Sprintf("Roulette tables (%d):", len(tables)), Color: textformat.Aqua}}
	for _, table := range tables {
		c := textformat.Green
		if rp.tables.Busy(table.Key()) {
			c = textformat.Red
		}
		msg = append(msg,
			textformat.Message{Text: "\n" + plugin.GetWorldName(table.World), Color: textformat.Yellow},
			textformat.Message{Text: fmt.Sprintf(" %d %d %d", table.X, table.Y, table.Z), Color: c},
			textformat.Message{Text: " (" + table.Creator + ")", Color: textformat.Gray},
		)
	}
	rp.Tell(player, msg)
}

func (rp *RoulettePlugin) remove(player string, args ...string) {
	var key string
	if len(args) == 0 {
		rp.lock.Lock()
		key = rp.pending[player]
		rp.lock.Unlock()
	}
	if key == "" {
		world, pos, err := rp.target(player, args)
		if err != nil {
			rp.TellError(player, err)
			return
		}
		key = roulette.Key(world, pos[0], pos[1], pos[2])
	}
	table, _ := rp.tables.Table(key)
	if err := rp.tables.Remove(key); err != nil {
		rp.TellError(player, err)
		return
	}
	if err := rp.Host().SetBlock(table.World, table.X, table.Y, table.Z, "air"); err != nil {
		rp.Println(color.RedString("无法移除轮盘方块: "), err)
	}
	rp.Println(color.GreenString(player), color.YellowString(" 移除了轮盘 "), color.BlueString(key))
	rp.Tell(player, []textformat.Message{{Text: "Roulette table removed.", Color: textformat.Green}})
}
