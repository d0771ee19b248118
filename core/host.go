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

package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
)

// ConsoleHost drives a Bedrock dedicated server by writing commands to its console.
// Name tags and permissions have no console command; they are sent as script events for
// a behavior pack listening on the guard namespace.
type ConsoleHost struct {
	lock sync.Mutex
	w    io.Writer
}

func NewConsoleHost(w io.Writer) *ConsoleHost {
	return &ConsoleHost{w: w}
}

func (h *ConsoleHost) command(format string, a ...any) error {
	line := fmt.Sprintf(format, a...)
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("command spans several lines: %q", line)
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

// selector quotes a player name for use as a command target.
func selector(player string) string {
	if player == "" || strings.ContainsAny(player, ` "@`) {
		return strconv.Quote(player)
	}
	return player
}

// itemName rejects identifiers that would break the command line.
func itemName(item string) (string, error) {
	item = strings.TrimSpace(item)
	if item == "" || strings.ContainsAny(item, " \"{}[],=") {
		return "", fmt.Errorf("invalid item %q", item)
	}
	return item, nil
}

func (h *ConsoleHost) Tell(player string, message string) error {
	return h.command("tellraw %s %s", selector(player), textformat.RawText(message))
}

func (h *ConsoleHost) Broadcast(message string) error {
	return h.command("tellraw @a %s", textformat.RawText(message))
}

func (h *ConsoleHost) GiveItem(player string, item string, count int) error {
	item, err := itemName(item)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("invalid item count %d", count)
	}
	return h.command("give %s %s %d", selector(player), item, count)
}

// TakeItem clears count items from player, only when the player holds at least count of
// them. The console does not report whether the clear happened.
func (h *ConsoleHost) TakeItem(player string, item string, count int) error {
	item, err := itemName(item)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("invalid item count %d", count)
	}
	return h.command("execute as @a[name=%s,hasitem={item=%s,quantity=%d..}] run clear @s %s 0 %d",
		selector(player), item, count, item, count)
}

func (h *ConsoleHost) SetBlock(world string, x, y, z int, block string) error {
	block, err := itemName(block)
	if err != nil {
		return err
	}
	dimension := plugin.Dimension(world)
	if dimension == "" {
		return fmt.Errorf("unknown dimension %q", world)
	}
	return h.command("execute in %s run setblock %d %d %d %s", dimension, x, y, z, block)
}

func (h *ConsoleHost) scriptEvent(id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.command("scriptevent guard:%s %s", id, data)
}

func (h *ConsoleHost) SetNameTag(player string, nameTag string) error {
	return h.scriptEvent("nametag", map[string]string{"player": player, "nameTag": nameTag})
}

func (h *ConsoleHost) SetPermissions(player string, permissions []string) error {
	if permissions == nil {
		permissions = []string{}
	}
	return h.scriptEvent("permissions", map[string]any{"player": player, "permissions": permissions})
}
