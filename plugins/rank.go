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
	"strings"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/rank"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/store"
	"github.com/fatih/color"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

const RankPlugin_AdminPermission = "rank.admin"

// RankPlugin gives every player a rank, possibly for a limited time. The rank decides
// the name tag, the chat prefix and the permissions of the player.
type RankPlugin struct {
	plugin.BasePlugin
	// Clock drives rank expiry. The real clock is used when nil.
	Clock   clockwork.Clock
	manager *rank.Manager
	cron    gocron.Scheduler
}

func (rp *RankPlugin) DisplayName() string {
	return "玩家等级"
}

func (rp *RankPlugin) Name() string {
	return "RankPlugin"
}

func (rp *RankPlugin) Init(pm pluginabi.PluginManager) (err error) {
	err = rp.BasePlugin.Init(pm, rp)
	if err != nil {
		return err
	}
	if rp.Clock == nil {
		rp.Clock = clockwork.NewRealClock()
	}
	rp.manager = rank.NewManager(
		store.New(pm.DataFile("ranks.yml"), true),
		store.New(pm.DataFile("players.yml"), true),
		rp.Clock,
	)
	if err := rp.manager.Load(); err != nil {
		rp.Println(color.RedString("加载等级数据失败: "), err)
	}
	rp.cron, err = gocron.NewScheduler(gocron.WithClock(rp.Clock))
	if err != nil {
		return err
	}
	_, err = rp.cron.NewJob(gocron.DurationJob(pm.Config().RankExpiryInterval()), gocron.NewTask(func() {
		rp.RunSync(rp.expire)
	}), gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return err
	}
	rp.RegisterEventHandler(rp.playerEvent)
	rp.RegisterCommand("rank", "create|list|set|addperm|render|default", rp.rankCli)
	rp.RegisterCommand("ranktime", "set <rank> <player> <duration>", rp.rankTimeCli)
	rp.RegisterCommand("rankremove", "<player>", rp.rankRemoveCli)
	return nil
}

// Manager returns the rank store backing the plugin.
func (rp *RankPlugin) Manager() *rank.Manager {
	return rp.manager
}

func (rp *RankPlugin) Start() {
	rp.cron.Start()
}

func (rp *RankPlugin) Pause() {
	rp.cron.StopJobs()
	if err := rp.manager.Save(); err != nil {
		rp.Println(color.RedString("保存等级数据失败: "), err)
	}
}

func (rp *RankPlugin) Reload() error {
	if err := rp.manager.Load(); err != nil {
		return err
	}
	rp.refreshOnline()
	return nil
}

// Permissions grants the permissions of the current rank of player.
func (rp *RankPlugin) Permissions(player string) []string {
	r, err := rp.manager.PlayerRank(player)
	if err != nil {
		rp.Println(color.RedString("保存等级数据失败: "), err)
	}
	return rp.manager.Permissions(r)
}

func (rp *RankPlugin) playerEvent(event *pluginabi.Event) {
	if event.Player == "" {
		return
	}
	switch event.Type {
	case pluginabi.EventJoin:
		if err := rp.manager.EnsureDefault(event.Player); err != nil {
			rp.Println(color.RedString("保存等级数据失败: "), err)
		}
		rp.apply(event.Player)
	case pluginabi.EventChat:
		if event.Cancelled() {
			return
		}
		r, _ := rp.manager.PlayerRank(event.Player)
		event.Format = rp.manager.Format(r, event.Player) + string(textformat.White) + ": " + event.Message
	}
}

// apply pushes the rank of player to the game server.
func (rp *RankPlugin) apply(player string) {
	r, err := rp.manager.PlayerRank(player)
	if err != nil {
		rp.Println(color.RedString("保存等级数据失败: "), err)
	}
	if err := rp.Host().SetPermissions(player, rp.manager.Permissions(r)); err != nil {
		rp.Println(color.RedString("无法设置 "), color.GreenString(player), color.RedString(" 的权限: "), err)
	}
	if err := rp.Host().SetNameTag(player, rp.manager.Format(r, player)); err != nil {
		rp.Println(color.RedString("无法设置 "), color.GreenString(player), color.RedString(" 的名称: "), err)
	}
}

func (rp *RankPlugin) refreshOnline() {
	for _, player := range rp.GetPlayerList() {
		rp.apply(player)
	}
}

func (rp *RankPlugin) expire() {
	expired, err := rp.manager.Expire()
	if err != nil {
		rp.Println(color.RedString("保存等级数据失败: "), err)
	}
	for _, player := range expired {
		rp.Println(color.GreenString(player), color.YellowString(" 的等级已过期"))
		rp.Broadcast([]textformat.Message{{Text: player + " just lost their rank", Color: textformat.Red}})
	}
	rp.refreshOnline()
}

func (rp *RankPlugin) say(player string, c textformat.Color, text string) {
	rp.Tell(player, []textformat.Message{{Text: text, Color: c}})
}

func (rp *RankPlugin) rankCli(player string, args ...string) {
	if !rp.RequirePermission(player, RankPlugin_AdminPermission) {
		return
	}
	sub := ""
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "create":
		if len(args) < 2 {
			rp.say(player, textformat.Yellow, "Usage: rank create <rank>")
			return
		}
		name := strings.ToLower(args[1])
		created, err := rp.manager.CreateRank(name)
		if err != nil {
			rp.TellError(player, err)
			return
		}
		if !created {
			rp.say(player, textformat.Red, "This rank already exists.")
			return
		}
		rp.say(player, textformat.Green, "Rank created: "+name)
	case "list":
		rp.say(player, textformat.Aqua, "Ranks: "+strings.Join(rp.manager.Ranks(), ", "))
	case "set":
		if len(args) < 3 {
			rp.say(player, textformat.Yellow, "Usage: rank set <rank> <player>")
			return
		}
		rp.setRank(player, strings.ToLower(args[1]), args[2], 0, "")
	case "addperm":
		if len(args) < 3 {
			rp.say(player, textformat.Yellow, "Usage: rank addperm <rank> <permission>")
			return
		}
		name := strings.ToLower(args[1])
		ok, err := rp.manager.AddPermission(name, args[2])
		if err != nil {
			rp.TellError(player, err)
			return
		}
		if !ok {
			rp.say(player, textformat.Red, "This rank does not exist.")
			return
		}
		rp.say(player, textformat.Green, "Permission added to rank "+name+": "+args[2])
		rp.refreshOnline()
	case "render":
		if len(args) < 3 {
			rp.say(player, textformat.Yellow, "Usage: rank render <rank> <render with {name}>")
			return
		}
		name := strings.ToLower(args[1])
		ok, err := rp.manager.SetRender(name, strings.Join(args[2:], " "))
		if err != nil {
			rp.TellError(player, err)
			return
		}
		if !ok {
			rp.say(player, textformat.Red, "This rank does not exist.")
			return
		}
		rp.say(player, textformat.Green, "Render of rank "+name+" set to "+rp.manager.Render(name))
		rp.refreshOnline()
	case "default":
		if len(args) < 2 {
			rp.say(player, textformat.Aqua, "Default rank: "+rp.manager.DefaultRank())
			return
		}
		name := strings.ToLower(args[1])
		if !rp.manager.RankExists(name) {
			rp.say(player, textformat.Red, "This rank does not exist.")
			return
		}
		if err := rp.manager.SetDefaultRank(name); err != nil {
			rp.TellError(player, err)
			return
		}
		rp.say(player, textformat.Green, "Default rank set to "+name)
	default:
		rp.say(player, textformat.Yellow, "Usage: rank create <rank> | rank list | rank set <rank> <player> | rank addperm <rank> <permission> | rank render <rank> <render> | rank default [rank]")
	}
}

func (rp *RankPlugin) setRank(player string, name string, target string, d time.Duration, label string) {
	ok, err := rp.manager.SetPlayerRank(target, name, d)
	if err != nil {
		rp.TellError(player, err)
		return
	}
	if !ok {
		rp.say(player, textformat.Red, "This rank does not exist.")
		return
	}
	rp.Println(color.GreenString(player), color.YellowString(" 将 "), color.GreenString(target), color.YellowString(" 的等级设为 "), color.BlueString(name))
	if d > 0 {
		rp.say(player, textformat.Green, "Player "+target+" received rank "+name+" for "+label+".")
	} else {
		rp.say(player, textformat.Green, "Player "+target+" received rank "+name+".")
	}
	if rp.IsOnline(target) {
		rp.apply(target)
	}
	rp.Broadcast([]textformat.Message{
		{Text: target + " just got the rank ", Color: textformat.Green},
		{Text: name, Color: textformat.Yellow},
		{Text: "!", Color: textformat.Green},
	})
}

func (rp *RankPlugin) rankTimeCli(player string, args ...string) {
	if !rp.RequirePermission(player, RankPlugin_AdminPermission) {
		return
	}
	if len(args) < 4 || strings.ToLower(args[0]) != "set" {
		rp.say(player, textformat.Yellow, "Usage: ranktime set <rank> <player> <duration e.g. 1d2h30m>")
		return
	}
	name := strings.ToLower(args[1])
	if !rp.manager.RankExists(name) {
		rp.say(player, textformat.Red, "This rank does not exist.")
		return
	}
	d, ok := rank.ParseDuration(args[3])
	if !ok || d <= 0 {
		rp.say(player, textformat.Red, "Invalid duration. Example: 1d2h30m")
		return
	}
	rp.setRank(player, name, args[2], d, rank.FormatDuration(d))
}

func (rp *RankPlugin) rankRemoveCli(player string, args ...string) {
	if !rp.RequirePermission(player, RankPlugin_AdminPermission) {
		return
	}
	if len(args) < 1 {
		rp.say(player, textformat.Yellow, "Usage: rankremove <player>")
		return
	}
	if err := rp.manager.RemovePlayerRank(args[0]); err != nil {
		rp.TellError(player, err)
		return
	}
	rp.say(player, textformat.Green, "Player "+args[0]+" is back to the default rank.")
	if rp.IsOnline(args[0]) {
		rp.apply(args[0])
	}
	rp.Broadcast([]textformat.Message{{Text: args[0] + " just lost their rank", Color: textformat.Red}})
}
