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
	"fmt"
	"sync"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"github.com/fatih/color"
)

type MinecraftCommandRequest struct {
	task     func()
	response chan struct{}
}

// MinecraftCommandProcessor runs every event, command and scheduled task one at a time
// on a single goroutine, the way the game server runs its own tick.
type MinecraftCommandProcessor struct {
	managerClient *MinecraftPluginManager
	queue         chan *MinecraftCommandRequest
	queueLock     sync.RWMutex
	closed        bool
	index         uint64
	slowTask      time.Duration
}

func (mc *MinecraftCommandProcessor) Println(a ...any) (int, error) {
	return mc.managerClient.Println(color.MagentaString(mc.DisplayName()), a...)
}

// RunSync queues task and waits until it ran. Tasks queued after Close are dropped.
func (mc *MinecraftCommandProcessor) RunSync(task func()) {
	resp := make(chan struct{})
	mc.queueLock.RLock()
	if mc.closed {
		mc.queueLock.RUnlock()
		return
	}
	mc.queue <- &MinecraftCommandRequest{
		task:     task,
		response: resp,
	}
	mc.queueLock.RUnlock()
	<-resp
}

func (mc *MinecraftCommandProcessor) run(cmd *MinecraftCommandRequest) {
	defer close(cmd.response)
	defer func() {
		if r := recover(); r != nil {
			mc.Println(color.RedString("任务["), color.GreenString("%d", mc.index), color.RedString("]执行失败: "), color.MagentaString(fmt.Sprint(r)))
		}
	}()
	start := time.Now()
	cmd.task()
	if elapsed := time.Since(start); elapsed > mc.slowTask {
		mc.Println(color.YellowString("任务["), color.GreenString("%d", mc.index), color.YellowString("]耗时过长: "), color.RedString(elapsed.String()), color.YellowString(" 队列中剩余: "), color.RedString("%d", len(mc.queue)))
	}
}

func (mc *MinecraftCommandProcessor) Worker() {
	for cmd := range mc.queue {
		mc.run(cmd)
		mc.index++
	}
	mc.Println(color.RedString("命令队列已关闭"))
}

// Close stops accepting tasks. Tasks already queued still run.
func (mc *MinecraftCommandProcessor) Close() {
	mc.queueLock.Lock()
	defer mc.queueLock.Unlock()
	if mc.closed {
		return
	}
	mc.closed = true
	close(mc.queue)
}

func (mc *MinecraftCommandProcessor) Init(mpm pluginabi.PluginManager) error {
	mc.managerClient = mpm.(*MinecraftPluginManager)
	mc.queue = make(chan *MinecraftCommandRequest, 16384)
	mc.slowTask = 50 * time.Millisecond
	go mc.Worker()
	return nil
}

func (mc *MinecraftCommandProcessor) Name() string {
	return "CommandProcessor"
}

func (mc *MinecraftCommandProcessor) DisplayName() string {
	return "命令处理器"
}

func (mc *MinecraftCommandProcessor) Start() {
}

func (mc *MinecraftCommandProcessor) Pause() {
}
