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

package plugin

import (
	"encoding/json"
	"errors"
	"io/fs"
	"slices"
	"sync"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/store"
	"github.com/fatih/color"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

type Location struct {
	World string
	Pos   mgl64.Vec3
	Yaw   float64
}

type MinecraftPlayerInfo struct {
	Player    string
	Location  *Location
	FirstSeen time.Time
	LastSeen  time.Time
}

type PlayerInfo_Storage struct {
	PlayerInfo map[string]*MinecraftPlayerInfo
}

// PlayerInfo follows joins, quits and moves to know who is online and where every
// player was seen last.
type PlayerInfo struct {
	BasePlugin
	online map[string]struct{}
	data   *PlayerInfo_Storage
	lock   sync.RWMutex
	file   *store.File
}

func (pi *PlayerInfo) Init(pm pluginabi.PluginManager) (err error) {
	err = pi.BasePlugin.Init(pm, pi)
	if err != nil {
		return err
	}
	pi.online = make(map[string]struct{})
	pi.data = &PlayerInfo_Storage{PlayerInfo: map[string]*MinecraftPlayerInfo{}}
	pi.file = store.New(pm.DataFile("playerinfo.json"), false)
	pi.RegisterEventHandler(pi.playerEvent)
	err = pi.Load()
	if err != nil {
		pi.Println(color.RedString("加载存储的玩家数据失败: "), err)
	}
	return nil
}

func (pi *PlayerInfo) playerEvent(event *pluginabi.Event) {
	if event.Player == "" {
		return
	}
	switch event.Type {
	case pluginabi.EventJoin:
		pi.lock.Lock()
		pi.online[event.Player] = struct{}{}
		info := pi.infoLocked(event.Player)
		info.Location = &Location{World: event.World, Pos: event.Pos, Yaw: event.Yaw}
		pi.lock.Unlock()
		pi.Println(color.GreenString(event.Player), color.YellowString(" 加入了游戏"))
	case pluginabi.EventMove:
		pi.lock.Lock()
		pi.online[event.Player] = struct{}{}
		info := pi.infoLocked(event.Player)
		info.Location = &Location{World: event.World, Pos: event.Pos, Yaw: event.Yaw}
		pi.lock.Unlock()
	case pluginabi.EventQuit:
		pi.lock.Lock()
		delete(pi.online, event.Player)
		pi.infoLocked(event.Player)
		pi.lock.Unlock()
		pi.Println(color.GreenString(event.Player), color.YellowString(" 离开了游戏"))
		if err := pi.Commit(); err != nil {
			pi.Println(color.RedString("保存玩家数据失败: "), err)
		}
	}
}

func (pi *PlayerInfo) infoLocked(player string) *MinecraftPlayerInfo {
	now := time.Now()
	info, ok := pi.data.PlayerInfo[player]
	if !ok {
		info = &MinecraftPlayerInfo{Player: player, FirstSeen: now}
		pi.data.PlayerInfo[player] = info
	}
	info.LastSeen = now
	return info
}

// Location returns where player was seen last.
func (pi *PlayerInfo) Location(player string) (Location, bool) {
	pi.lock.RLock()
	defer pi.lock.RUnlock()
	info, ok := pi.data.PlayerInfo[player]
	if !ok || info.Location == nil {
		return Location{}, false
	}
	return *info.Location, true
}

func (pi *PlayerInfo) GetPlayerInfo(player string) (MinecraftPlayerInfo, bool) {
	pi.lock.RLock()
	defer pi.lock.RUnlock()
	info, ok := pi.data.PlayerInfo[player]
	if !ok {
		return MinecraftPlayerInfo{}, false
	}
	return *info, true
}

// Online lists the players currently connected in order.
func (pi *PlayerInfo) Online() []string {
	pi.lock.RLock()
	defer pi.lock.RUnlock()
	list := lo.Keys(pi.online)
	slices.Sort(list)
	return list
}

func (pi *PlayerInfo) IsOnline(player string) bool {
	pi.lock.RLock()
	defer pi.lock.RUnlock()
	_, ok := pi.online[player]
	return ok
}

func (pi *PlayerInfo) Pause() {
	if err := pi.Commit(); err != nil {
		pi.Println(color.RedString("保存玩家数据失败: "), err)
	}
}

func (pi *PlayerInfo) Name() string {
	return "PlayerInfo"
}

func (pi *PlayerInfo) DisplayName() string {
	return "玩家信息"
}

func (pi *PlayerInfo) Load() error {
	data, err := pi.file.Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	pi.lock.Lock()
	defer pi.lock.Unlock()
	err = json.Unmarshal(data, pi.data)
	if err != nil {
		return err
	}
	if pi.data.PlayerInfo == nil {
		pi.data.PlayerInfo = map[string]*MinecraftPlayerInfo{}
	}
	return nil
}

func (pi *PlayerInfo) Commit() error {
	pi.lock.RLock()
	saveData, err := json.MarshalIndent(pi.data, "", "\t")
	pi.lock.RUnlock()
	if err != nil {
		return err
	}
	return pi.file.Write(saveData)
}
