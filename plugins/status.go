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
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/cpu"
	load "github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

type Status_NetStat struct {
	time time.Time
	stat net.IOCountersStat
}

// StatusPlugin reports the load of the machine, the daemon and the game server.
type StatusPlugin struct {
	plugin.BasePlugin
	pm          pluginabi.PluginManager
	lastnetStat *Status_NetStat
	lock        sync.Mutex
}

func (s *StatusPlugin) DisplayName() string {
	return "服务器监控"
}

func (s *StatusPlugin) Name() string {
	return "StatusPlugin"
}

func (s *StatusPlugin) Init(pm pluginabi.PluginManager) (err error) {
	err = s.BasePlugin.Init(pm, s)
	if err != nil {
		return err
	}
	s.pm = pm
	cpu.Percent(0, true)
	if netio, err := s.getNetio(); err == nil {
		s.lastnetStat = &Status_NetStat{time: time.Now(), stat: netio}
	}
	s.RegisterCommand("status", "", s.status)
	return nil
}

func (s *StatusPlugin) floatLevel(f float64) textformat.Color {
	if f < 0.4 {
		return textformat.Green
	}
	if f < 0.7 {
		return textformat.Yellow
	}
	return textformat.Red
}

func (s *StatusPlugin) getNetio() (o net.IOCountersStat, err error) {
	netio, err := net.IOCounters(true)
	if err != nil {
		return
	}
	for _, nic := range netio {
		if strings.HasPrefix(nic.Name, "eth") || strings.HasPrefix(nic.Name, "en") || strings.HasPrefix(nic.Name, "wl") {
			o.BytesRecv += nic.BytesRecv
			o.BytesSent += nic.BytesSent
		}
	}
	o.Name = "all"
	return
}

// Counts returns the number of regions, ranks and roulette tables of the loaded plugins.
func (s *StatusPlugin) Counts() (regions int, ranks int, tables int) {
	if rp, ok := s.pm.GetPlugin("RegionPlugin").(*RegionPlugin); ok {
		regions = rp.Manager().Len()
	}
	if rp, ok := s.pm.GetPlugin("RankPlugin").(*RankPlugin); ok {
		ranks = len(rp.Manager().Ranks())
	}
	if rp, ok := s.pm.GetPlugin("RoulettePlugin").(*RoulettePlugin); ok {
		tables = rp.Tables().Len()
	}
	return regions, ranks, tables
}

func mib(b uint64) string {
	return fmt.Sprintf("%.0f", float64(b)/1024/1024)
}

func (s *StatusPlugin) status(player string, args ...string) {
	now := time.Now()
	s.Tell(player, []textformat.Message{{Text: "============ System ============", Color: textformat.Green}})
	cpu_count, _ := cpu.Counts(true)
	cpu_usage, err := cpu.Percent(0, true)
	if err == nil && len(cpu_usage) > 0 {
		cpu_usage_avg := lo.Reduce(cpu_usage, func(agg float64, item float64, index int) float64 {
			return agg + item
		}, 0) / float64(len(cpu_usage)) / 100.0
		usage_bar := int(math.RoundToEven(cpu_usage_avg * 32.0))
		s.Tell(player, []textformat.Message{
			{Text: "CPU: ", Color: textformat.Aqua},
			{Text: "[", Color: textformat.Yellow},
			{Text: strings.Repeat("|", max(usage_bar, 0)), Color: textformat.Red},
			{Text: strings.Repeat("|", max(32-usage_bar, 0)), Color: textformat.Green},
			{Text: "]", Color: textformat.Yellow},
			{Text: fmt.Sprintf(" %.2f%%", cpu_usage_avg*100), Color: s.floatLevel(cpu_usage_avg)},
		})
	}
	system_load, err := load.Avg()
	if err == nil && cpu_count != 0 {
		load1, load5, load15 := system_load.Load1, system_load.Load5, system_load.Load15
		s.Tell(player, []textformat.Message{
			{Text: "Load: ", Color: textformat.Aqua},
			{Text: "1min: ", Color: textformat.Yellow},
			{Text: fmt.Sprintf("%.2f", load1), Color: s.floatLevel(load1 / float64(cpu_count))},
			{Text: " 5min: ", Color: textformat.Yellow},
			{Text: fmt.Sprintf("%.2f", load5), Color: s.floatLevel(load5 / float64(cpu_count))},
			{Text: " 15min: ", Color: textformat.Yellow},
			{Text: fmt.Sprintf("%.2f", load15), Color: s.floatLevel(load15 / float64(cpu_count))},
		})
	}
	sys_mem, err := mem.VirtualMemory()
	if err == nil {
		level := s.floatLevel(float64(sys_mem.Used) / float64(sys_mem.Total))
		msg := []textformat.Message{
			{Text: "Memory: ", Color: textformat.Aqua},
			{Text: mib(sys_mem.Used), Color: level},
		}
		if daemon, err := process.NewProcess(int32(os.Getpid())); err == nil {
			if info, err := daemon.MemoryInfo(); err == nil {
				msg = append(msg,
					textformat.Message{Text: " [daemon ", Color: textformat.Light_Purple},
					textformat.Message{Text: mib(info.RSS), Color: level},
					textformat.Message{Text: "]", Color: textformat.Light_Purple},
				)
			}
		}
		msg = append(msg,
			textformat.Message{Text: " MiB/", Color: textformat.Yellow},
			textformat.Message{Text: mib(sys_mem.Total), Color: textformat.Green},
			textformat.Message{Text: " MiB", Color: textformat.Yellow},
		)
		s.Tell(player, msg)
	}
	netio, err := s.getNetio()
	s.lock.Lock()
	if err == nil && s.lastnetStat != nil {
		seconds := now.Sub(s.lastnetStat.time).Seconds()
		if seconds > 0 {
			upSpeed := float64(netio.BytesSent-s.lastnetStat.stat.BytesSent) * 8.0 / seconds / 1024.0 / 1024.0
			downSpeed := float64(netio.BytesRecv-s.lastnetStat.stat.BytesRecv) * 8.0 / seconds / 1024.0 / 1024.0
			s.Tell(player, []textformat.Message{
				{Text: "Network: ", Color: textformat.Aqua},
				{Text: fmt.Sprintf("%.2f", upSpeed), Color: textformat.Yellow},
				{Text: " Mbps↑ ", Color: textformat.Aqua},
				{Text: fmt.Sprintf("%.2f", downSpeed), Color: textformat.Yellow},
				{Text: " Mbps↓", Color: textformat.Aqua},
			})
		}
		s.lastnetStat.time = now
		s.lastnetStat.stat = netio
	}
	s.lock.Unlock()

	s.Tell(player, []textformat.Message{{Text: "============ Server ============", Color: textformat.Green}})
	if server, ok := s.pm.ServerStatus(); ok {
		if server.Running {
			s.Tell(player, []textformat.Message{
				{Text: "Game server: ", Color: textformat.Aqua},
				{Text: "running", Color: textformat.Green, Bold: true},
				{Text: fmt.Sprintf(" pid %d", server.Pid), Color: textformat.Gray},
				{Text: " memory " + mib(server.Usedmemory) + " MiB", Color: textformat.Yellow},
				{Text: " uptime " + server.Uptime.Truncate(time.Second).String(), Color: textformat.Yellow},
			})
		} else {
			s.Tell(player, []textformat.Message{
				{Text: "Game server: ", Color: textformat.Aqua},
				{Text: "stopped", Color: textformat.Red, Bold: true},
			})
		}
	}
	regions, ranks, tables := s.Counts()
	s.Tell(player, []textformat.Message{
		{Text: "Regions: ", Color: textformat.Aqua},
		{Text: fmt.Sprint(regions), Color: textformat.Green},
		{Text: " Ranks: ", Color: textformat.Aqua},
		{Text: fmt.Sprint(ranks), Color: textformat.Green},
		{Text: " Roulette tables: ", Color: textformat.Aqua},
		{Text: fmt.Sprint(tables), Color: textformat.Green},
		{Text: " Online: ", Color: textformat.Aqua},
		{Text: fmt.Sprint(len(s.GetPlayerList())), Color: textformat.Green},
	})
}
