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
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/config"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"github.com/fatih/color"
)

var ErrPluginExists = errors.New("plugin already registered")

type eventHandler struct {
	owner   string
	handler pluginabi.EventHandler
}

// ServerReporter reports on the supervised game server.
type ServerReporter interface {
	Status() pluginabi.ServerStatus
}

type MinecraftPluginManager struct {
	config           config.Config
	host             pluginabi.Host
	server           ServerReporter
	output           io.Writer
	outputLock       sync.Mutex
	commandProcessor *MinecraftCommandProcessor
	simpleCommand    *plugin.SimpleCommand
	plugins          map[string]pluginabi.Plugin
	pluginOrder      []string
	pluginLock       sync.RWMutex
	handlers         []eventHandler
	handlerLock      sync.RWMutex
	running          bool
}

// NewPluginManager returns a manager sending game commands to host. The command queue
// and the built-in plugins are registered right away.
func NewPluginManager(cfg config.Config, host pluginabi.Host) (pm *MinecraftPluginManager) {
	pm = &MinecraftPluginManager{
		config:  cfg,
		host:    host,
		output:  color.Output,
		plugins: make(map[string]pluginabi.Plugin),
	}
	pm.kPrintln(color.YellowString("正在注册命令处理器"))
	pm.commandProcessor = &MinecraftCommandProcessor{}
	pm.RegisterPlugin(pm.commandProcessor)
	pm.kPrintln(color.YellowString("正在加载内置插件"))
	pm.loadBulitinPlugin()
	return pm
}

// SetOutput redirects the console log.
func (mpm *MinecraftPluginManager) SetOutput(w io.Writer) {
	mpm.outputLock.Lock()
	defer mpm.outputLock.Unlock()
	mpm.output = w
}

// SetServer attaches the supervised game server reported by ServerStatus.
func (mpm *MinecraftPluginManager) SetServer(server ServerReporter) {
	mpm.pluginLock.Lock()
	defer mpm.pluginLock.Unlock()
	mpm.server = server
}

func (mpm *MinecraftPluginManager) Printf(scope string, format string, a ...any) (n int, err error) {
	mpm.outputLock.Lock()
	defer mpm.outputLock.Unlock()
	return fmt.Fprintf(mpm.output, color.YellowString("[")+"%s"+color.YellowString("] ")+strings.TrimRight(format, "\r\n")+"\r\n", append([]any{scope}, a...)...)
}

func (mpm *MinecraftPluginManager) Println(scope string, a ...any) (n int, err error) {
	return mpm.Printf(scope, "%s", strings.TrimRight(fmt.Sprint(a...), "\r\n"))
}

func (mpm *MinecraftPluginManager) kPrintln(a ...any) (n int, err error) {
	return mpm.Println(color.RedString("GuardDaemon"), a...)
}

func (mpm *MinecraftPluginManager) RegisterPlugin(plugin pluginabi.Plugin) (err error) {
	pluginName := plugin.Name()
	pluginDisplayName := plugin.DisplayName()
	mpm.pluginLock.Lock()
	if _, ok := mpm.plugins[pluginName]; ok {
		mpm.pluginLock.Unlock()
		mpm.kPrintln(color.YellowString("插件 "), color.BlueString(pluginDisplayName), color.RedString(" 已经加载，"), color.YellowString("本次加载请求忽略"))
		return fmt.Errorf("%w: %s", ErrPluginExists, pluginName)
	}
	mpm.plugins[pluginName] = plugin
	mpm.pluginOrder = append(mpm.pluginOrder, pluginName)
	running := mpm.running
	mpm.pluginLock.Unlock()
	mpm.kPrintln(color.YellowString("注册并加载新插件 "), color.BlueString(pluginDisplayName))
	if err := plugin.Init(mpm); err != nil {
		mpm.kPrintln(color.YellowString("插件 "), color.BlueString(pluginDisplayName), color.RedString(" 加载失败: "), color.MagentaString(err.Error()))
		mpm.pluginLock.Lock()
		delete(mpm.plugins, pluginName)
		mpm.pluginOrder = slices.DeleteFunc(mpm.pluginOrder, func(name string) bool { return name == pluginName })
		mpm.pluginLock.Unlock()
		return fmt.Errorf("init plugin %s: %w", pluginName, err)
	}
	mpm.kPrintln(color.YellowString("插件 "), color.BlueString(pluginDisplayName), color.GreenString(" 加载成功"))
	if running {
		plugin.Start()
	}
	return nil
}

func (mpm *MinecraftPluginManager) GetPlugin(pluginName string) pluginabi.Plugin {
	mpm.pluginLock.RLock()
	defer mpm.pluginLock.RUnlock()
	if plugin, ok := mpm.plugins[pluginName]; ok {
		return plugin
	}
	return nil
}

// Plugins returns the plugins in registration order.
func (mpm *MinecraftPluginManager) Plugins() []pluginabi.Plugin {
	mpm.pluginLock.RLock()
	defer mpm.pluginLock.RUnlock()
	plugins := make([]pluginabi.Plugin, 0, len(mpm.pluginOrder))
	for _, name := range mpm.pluginOrder {
		plugins = append(plugins, mpm.plugins[name])
	}
	return plugins
}

func (mpm *MinecraftPluginManager) RegisterEventHandler(context pluginabi.PluginName, handler pluginabi.EventHandler) {
	var pluginName string
	if context == nil {
		pluginName = "anonymous"
	} else {
		pluginName = context.DisplayName()
	}
	mpm.kPrintln(color.YellowString("插件 "), color.BlueString(pluginName), color.YellowString(" 注册了一个事件处理器"))
	mpm.handlerLock.Lock()
	defer mpm.handlerLock.Unlock()
	mpm.handlers = append(mpm.handlers, eventHandler{owner: pluginName, handler: handler})
}

// FireEvent hands event to every handler in registration order on the command queue
// and returns it once all of them ran. It must not be called from a handler.
func (mpm *MinecraftPluginManager) FireEvent(event *pluginabi.Event) *pluginabi.Event {
	mpm.handlerLock.RLock()
	handlers := slices.Clone(mpm.handlers)
	mpm.handlerLock.RUnlock()
	mpm.RunSync(func() {
		for _, h := range handlers {
			h.handler(event)
		}
	})
	return event
}

// Dispatch runs a command line for player on the command queue.
func (mpm *MinecraftPluginManager) Dispatch(player string, line string) (found bool) {
	mpm.RunSync(func() {
		found = mpm.simpleCommand.Dispatch(player, line)
	})
	return found
}

// RunSync runs fn on the command queue and waits for it. Everything touching plugin
// state from outside of an event or a command goes through here.
func (mpm *MinecraftPluginManager) RunSync(fn func()) {
	mpm.commandProcessor.RunSync(fn)
}

// HasPermission reports whether player holds permission. The console and the configured
// operators hold every permission, other players what the permission providers grant.
func (mpm *MinecraftPluginManager) HasPermission(player string, permission string) bool {
	if player == pluginabi.Console {
		return true
	}
	if slices.ContainsFunc(mpm.config.Daemon.Operators, func(op string) bool { return strings.EqualFold(op, player) }) {
		return true
	}
	for _, p := range mpm.Plugins() {
		provider, ok := p.(pluginabi.PermissionProvider)
		if !ok {
			continue
		}
		for _, granted := range provider.Permissions(player) {
			if granted == "*" || granted == permission {
				return true
			}
		}
	}
	return false
}

func (mpm *MinecraftPluginManager) Host() pluginabi.Host {
	return mpm.host
}

func (mpm *MinecraftPluginManager) Config() config.Config {
	return mpm.config
}

func (mpm *MinecraftPluginManager) DataDirectory() string {
	return mpm.config.Daemon.DataDirectory
}

func (mpm *MinecraftPluginManager) DataFile(name string) string {
	return filepath.Join(mpm.config.Daemon.DataDirectory, name)
}

func (mpm *MinecraftPluginManager) ServerStatus() (pluginabi.ServerStatus, bool) {
	mpm.pluginLock.RLock()
	server := mpm.server
	mpm.pluginLock.RUnlock()
	if server == nil {
		return pluginabi.ServerStatus{}, false
	}
	return server.Status(), true
}

func (mpm *MinecraftPluginManager) Start() {
	mpm.pluginLock.Lock()
	mpm.running = true
	mpm.pluginLock.Unlock()
	mpm.kPrintln(color.YellowString("通知插件服务器启动完成"))
	for _, plugin := range mpm.Plugins() {
		plugin.Start()
	}
}

func (mpm *MinecraftPluginManager) Pause() {
	mpm.pluginLock.Lock()
	mpm.running = false
	mpm.pluginLock.Unlock()
	plugins := mpm.Plugins()
	slices.Reverse(plugins)
	for _, plugin := range plugins {
		plugin.Pause()
	}
}

// Shutdown pauses every plugin, which saves their stores, and stops the command queue.
func (mpm *MinecraftPluginManager) Shutdown() {
	mpm.kPrintln(color.RedString("正在关闭插件"))
	mpm.Pause()
	mpm.commandProcessor.Close()
	mpm.kPrintln(color.GreenString("插件已全部关闭"))
}

func (mpm *MinecraftPluginManager) loadBulitinPlugin() {
	mpm.RegisterPlugin(&plugin.SimpleCommand{})
	mpm.RegisterPlugin(&plugin.PlayerInfo{})
	mpm.simpleCommand = mpm.GetPlugin("SimpleCommand").(*plugin.SimpleCommand)
}
