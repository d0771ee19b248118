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
	"fmt"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/config"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
	"github.com/fatih/color"
)

type BasePlugin struct {
	pm            pluginabi.PluginManager
	p             pluginabi.Plugin
	playerInfo    *PlayerInfo
	simpleCommand *SimpleCommand
}

func (bp *BasePlugin) Println(a ...any) (int, error) {
	return bp.pm.Println(color.BlueString(bp.p.DisplayName()), a...)
}

func (bp *BasePlugin) Printf(format string, a ...any) (int, error) {
	return bp.pm.Printf(color.BlueString(bp.p.DisplayName()), format, a...)
}

func (bp *BasePlugin) Init(pm pluginabi.PluginManager, plugin pluginabi.Plugin) error {
	bp.pm = pm
	bp.p = plugin
	ignoreErr := false
	switch plugin.(type) {
	case *PlayerInfo, *SimpleCommand:
		ignoreErr = true
	}

	pi := pm.GetPlugin("PlayerInfo")
	if pi == nil {
		if !ignoreErr {
			return fmt.Errorf("no playerinfo instance")
		}
	} else {
		bp.playerInfo = pi.(*PlayerInfo)
	}

	sp := pm.GetPlugin("SimpleCommand")
	if sp == nil {
		if !ignoreErr {
			return fmt.Errorf("no simplecommand instance")
		}
	} else {
		bp.simpleCommand = sp.(*SimpleCommand)
	}
	return nil
}

func (bp *BasePlugin) RegisterCommand(command string, usage string, commandFunc CommandFunc) error {
	if bp.simpleCommand == nil {
		return fmt.Errorf("no simplecommand instance")
	}
	return bp.simpleCommand.RegisterCommand(bp.p, command, usage, commandFunc)
}

func (bp *BasePlugin) RegisterEventHandler(handler pluginabi.EventHandler) {
	bp.pm.RegisterEventHandler(bp.p, handler)
}

func (bp *BasePlugin) Host() pluginabi.Host {
	return bp.pm.Host()
}

func (bp *BasePlugin) Config() config.Config {
	return bp.pm.Config()
}

func (bp *BasePlugin) DataFile(name string) string {
	return bp.pm.DataFile(name)
}

func (bp *BasePlugin) HasPermission(player string, permission string) bool {
	return bp.pm.HasPermission(player, permission)
}

// RequirePermission tells player off when the permission is missing.
func (bp *BasePlugin) RequirePermission(player string, permission string) bool {
	if bp.pm.HasPermission(player, permission) {
		return true
	}
	bp.Tell(player, []textformat.Message{{Text: "You do not have permission to do that.", Color: textformat.Red}})
	return false
}

func (bp *BasePlugin) RunSync(fn func()) {
	bp.pm.RunSync(fn)
}

func (bp *BasePlugin) GetPlayerLocation(player string) (Location, bool) {
	if bp.playerInfo == nil {
		return Location{}, false
	}
	return bp.playerInfo.Location(player)
}

func (bp *BasePlugin) GetPlayerList() []string {
	if bp.playerInfo == nil {
		return nil
	}
	return bp.playerInfo.Online()
}

func (bp *BasePlugin) IsOnline(player string) bool {
	if bp.playerInfo == nil {
		return false
	}
	return bp.playerInfo.IsOnline(player)
}

func (bp *BasePlugin) prefix() []textformat.Message {
	return []textformat.Message{
		{Text: "[", Color: textformat.Yellow, Bold: true},
		{Text: bp.p.DisplayName(), Color: textformat.Green, Bold: true},
		{Text: "] ", Color: textformat.Yellow, Bold: true},
	}
}

// Tell sends msg to player. Messages to the console are written to the log instead.
func (bp *BasePlugin) Tell(player string, msg []textformat.Message) error {
	if player == pluginabi.Console {
		_, err := bp.Println(textformat.Strip(textformat.Build(msg...)))
		return err
	}
	return bp.pm.Host().Tell(player, textformat.Build(append(bp.prefix(), msg...)...))
}

// TellRaw sends an already formatted line to player without the plugin prefix.
func (bp *BasePlugin) TellRaw(player string, line string) error {
	if player == pluginabi.Console {
		_, err := bp.Println(textformat.Strip(line))
		return err
	}
	return bp.pm.Host().Tell(player, line)
}

func (bp *BasePlugin) TellError(player string, err error) error {
	return bp.Tell(player, []textformat.Message{
		{Text: "Error: ", Color: textformat.Red, Bold: true},
		{Text: err.Error(), Color: textformat.Red},
	})
}

func (bp *BasePlugin) Broadcast(msg []textformat.Message) error {
	line := textformat.Build(msg...)
	bp.Println(textformat.Strip(line))
	return bp.pm.Host().Broadcast(line)
}

func (bp *BasePlugin) Name() string {
	return "BasePlugin"
}

func (bp *BasePlugin) DisplayName() string {
	return "基础插件"
}

func (bp *BasePlugin) Pause() {

}

func (bp *BasePlugin) Start() {

}
