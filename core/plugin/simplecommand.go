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
	"slices"
	"strings"
	"sync"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
	"github.com/fatih/color"
	"golang.org/x/exp/maps"
)

// ChatCommandPrefix marks chat messages that are commands for the daemon.
const ChatCommandPrefix = "!!"

type CommandFunc func(player string, args ...string)

type registeredCommand struct {
	owner string
	usage string
	fn    CommandFunc
}

type SimpleCommand struct {
	BasePlugin
	registerCommands map[string]*registeredCommand
	lock             sync.RWMutex
}

func (sp *SimpleCommand) Init(pm pluginabi.PluginManager) (err error) {
	err = sp.BasePlugin.Init(pm, sp)
	if err != nil {
		return err
	}
	sp.registerCommands = make(map[string]*registeredCommand)
	sp.RegisterEventHandler(sp.processChat)
	return sp.RegisterCommand(sp, "help", "", sp.help)
}

// RegisterCommand makes command available to players. Command names are matched without
// regard to case.
func (sp *SimpleCommand) RegisterCommand(context pluginabi.PluginName, command string, usage string, commandFunc CommandFunc) error {
	command = strings.ToLower(command)
	sp.lock.Lock()
	defer sp.lock.Unlock()
	if _, ok := sp.registerCommands[command]; !ok {
		sp.Println(color.YellowString("插件 "), color.BlueString(context.DisplayName()), color.YellowString(" 注册了一条新命令: "), color.GreenString(command))
		sp.registerCommands[command] = &registeredCommand{owner: context.DisplayName(), usage: usage, fn: commandFunc}
	} else {
		sp.Println(color.YellowString("插件 "), color.BlueString(context.DisplayName()), color.RedString(" 尝试注册已注册的命令: "), color.GreenString(command))
		return fmt.Errorf("command exist")
	}
	return nil
}

func (sp *SimpleCommand) processChat(event *pluginabi.Event) {
	if event.Type != pluginabi.EventChat || !strings.HasPrefix(event.Message, ChatCommandPrefix) {
		return
	}
	event.Cancel()
	sp.Dispatch(event.Player, strings.TrimPrefix(event.Message, ChatCommandPrefix))
}

// Dispatch runs line for player on the calling goroutine. It reports false when the
// command is unknown.
func (sp *SimpleCommand) Dispatch(player string, line string) bool {
	commandPart := SplitCommand(strings.TrimLeft(strings.TrimSpace(line), "/"))
	if len(commandPart) == 0 {
		return false
	}
	command := strings.ToLower(commandPart[0])
	sp.lock.RLock()
	registered, ok := sp.registerCommands[command]
	sp.lock.RUnlock()
	if !ok {
		sp.Tell(player, []textformat.Message{
			{Text: "Unknown command: ", Color: textformat.Red},
			{Text: command, Color: textformat.Yellow},
			{Text: ", try help", Color: textformat.Red},
		})
		return false
	}
	sp.Println(color.YellowString("玩家 "), color.GreenString(player), color.YellowString(" 执行命令: "), color.CyanString(line))
	registered.fn(player, commandPart[1:]...)
	return true
}

func (sp *SimpleCommand) Commands() []string {
	sp.lock.RLock()
	defer sp.lock.RUnlock()
	return sortedKeys(sp.registerCommands)
}

func (sp *SimpleCommand) help(player string, _ ...string) {
	msg := []textformat.Message{{Text: "Commands:", Color: textformat.Aqua}}
	for _, command := range sp.Commands() {
		sp.lock.RLock()
		registered := sp.registerCommands[command]
		sp.lock.RUnlock()
		msg = append(msg,
			textformat.Message{Text: "\n" + command, Color: textformat.Green},
			textformat.Message{Text: " " + registered.usage, Color: textformat.Yellow},
			textformat.Message{Text: " (" + registered.owner + ")", Color: textformat.Gray},
		)
	}
	sp.Tell(player, msg)
}

// SplitCommand splits line into words. Double quotes group words, a backslash escapes
// the next character inside quotes.
func SplitCommand(line string) []string {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quoted  bool
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
			inWord = true
		case !quoted && (r == ' ' || r == '\t'):
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		words = append(words, current.String())
	}
	return words
}

func (sp *SimpleCommand) Name() string {
	return "SimpleCommand"
}

func (sp *SimpleCommand) DisplayName() string {
	return "简单命令"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
