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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// REPLPlugin reads console commands from the operator's terminal and dispatches them as
// CONSOLE. OnExit is called on "exit" or end of input.
type REPLPlugin struct {
	pm       *MinecraftPluginManager
	terminal *term.Terminal
	state    *term.State
	OnExit   func()
}

func (rp *REPLPlugin) DisplayName() string {
	return "终端命令"
}

func (rp *REPLPlugin) Name() string {
	return "REPLPlugin"
}

func (rp *REPLPlugin) initTerminal() (t *term.Terminal, err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	rp.state, err = term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	terminal := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	t = term.NewTerminal(terminal, "Guard-Command > ")
	return t, nil
}

func (rp *REPLPlugin) Init(pm pluginabi.PluginManager) (err error) {
	ok := false
	rp.pm, ok = pm.(*MinecraftPluginManager)
	if !ok {
		return fmt.Errorf("can not get terminal")
	}
	rp.terminal, err = rp.initTerminal()
	if err != nil {
		rp.pm.Println(color.BlueString(rp.DisplayName()), color.YellowString("终端不可用: %s", err.Error()))
		return nil
	}
	rp.pm.SetOutput(rp.terminal)
	go rp.worker()
	return nil
}

func (rp *REPLPlugin) restore() {
	if rp.state != nil {
		term.Restore(int(os.Stdin.Fd()), rp.state)
		rp.state = nil
	}
}

func (rp *REPLPlugin) exit() {
	rp.restore()
	if rp.OnExit != nil {
		rp.OnExit()
	}
}

func (rp *REPLPlugin) worker() {
	for {
		line, err := rp.terminal.ReadLine()
		if err != nil {
			if err == io.EOF {
				rp.exit()
				return
			}
			continue
		}
		line = strings.TrimSpace(line)
		if line == "exit" {
			rp.exit()
			return
		}
		if len(line) > 0 {
			rp.pm.Dispatch(pluginabi.Console, line)
		}
	}
}

func (rp *REPLPlugin) Pause() {
	rp.restore()
}

func (rp *REPLPlugin) Start() {
}
