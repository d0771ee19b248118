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
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/textformat"
	"github.com/fatih/color"
	"github.com/go-co-op/gocron/v2"
	"github.com/otiai10/copy"
	"github.com/samber/lo"
)

const (
	BackupPlugin_PageSize   = 5
	BackupPlugin_Permission = "backup.admin"
	BackupPlugin_TimeFormat = "2006_01_02_15_04_05.000"
)

var ErrBackupRunning = errors.New("a backup is already running")

// BackupPlugin snapshots the data directory. Snapshot names start with their creation
// time, so they sort from oldest to newest.
type BackupPlugin struct {
	plugin.BasePlugin
	Source     string // data directory
	Dest       string // snapshot directory
	Keep       int
	backupLock sync.Mutex
	cron       gocron.Scheduler
	pm         pluginabi.PluginManager
}

func (bp *BackupPlugin) DisplayName() string {
	return "简单备份"
}

func (bp *BackupPlugin) Name() string {
	return "BackupPlugin"
}

func (bp *BackupPlugin) SaveSize(src string) (int64, error) {
	var size int64
	err := filepath.Walk(src, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return err
	})
	return size, err
}

func snapshotComment(comment string) string {
	comment = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(comment))
	if comment == "" {
		return "backup"
	}
	return comment
}

// skipDest keeps snapshots out of themselves when Dest lies inside Source.
func (bp *BackupPlugin) skipDest(info os.FileInfo, src, dest string) (bool, error) {
	rel, err := filepath.Rel(bp.Dest, src)
	if err != nil {
		return false, nil
	}
	return rel == "." || !strings.HasPrefix(rel, ".."), nil
}

// MakeBackup copies the data directory into a new snapshot and returns its name.
func (bp *BackupPlugin) MakeBackup(comment string) (string, error) {
	if !bp.backupLock.TryLock() {
		return "", ErrBackupRunning
	}
	defer bp.backupLock.Unlock()
	name, err := bp.makeBackupLocked(comment)
	if err != nil {
		return "", err
	}
	if err := bp.prune(); err != nil {
		bp.Println(color.RedString("清理旧备份失败: "), err)
	}
	return name, nil
}

func (bp *BackupPlugin) makeBackupLocked(comment string) (string, error) {
	now := time.Now()
	name := now.Format(BackupPlugin_TimeFormat) + "_" + snapshotComment(comment)
	dest := filepath.Join(bp.Dest, name)
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup %s already exists", name)
	}
	size, err := bp.SaveSize(bp.Source)
	if err != nil {
		return "", err
	}
	bp.Println(color.YellowString("开始备份 "), color.BlueString(name), color.YellowString(" 大小: "), color.GreenString("%.2fMiB", float64(size)/1024/1024))
	if err := os.MkdirAll(bp.Dest, 0755); err != nil {
		return "", err
	}
	if err := copy.Copy(bp.Source, dest, copy.Options{Skip: bp.skipDest}); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("copy %s: %w", bp.Source, err)
	}
	bp.Println(color.GreenString("备份完成: "), color.BlueString(name))
	return name, nil
}

// List returns the snapshot names, newest first.
func (bp *BackupPlugin) List() ([]string, error) {
	entries, err := os.ReadDir(bp.Dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	list := lo.FilterMap(entries, func(item fs.DirEntry, _ int) (string, bool) {
		return item.Name(), item.IsDir()
	})
	slices.Sort(list)
	slices.Reverse(list)
	return list, nil
}

func (bp *BackupPlugin) prune() error {
	if bp.Keep <= 0 {
		return nil
	}
	list, err := bp.List()
	if err != nil {
		return err
	}
	for len(list) > bp.Keep {
		oldest := list[len(list)-1]
		bp.Println(color.YellowString("删除旧备份: "), color.BlueString(oldest))
		if err := os.RemoveAll(filepath.Join(bp.Dest, oldest)); err != nil {
			return err
		}
		list = list[:len(list)-1]
	}
	return nil
}

// Restore replaces the data directory with snapshot name, after saving the current data
// as a PreRestore snapshot, and has every plugin reload its stores.
func (bp *BackupPlugin) Restore(name string) error {
	list, err := bp.List()
	if err != nil {
		return err
	}
	if !slices.Contains(list, name) {
		return fmt.Errorf("no backup named %s", name)
	}
	if !bp.backupLock.TryLock() {
		return ErrBackupRunning
	}
	defer bp.backupLock.Unlock()
	bp.Println(color.YellowString("正在回档: "), color.BlueString(name))
	bp.Println(color.YellowString("创建回档前备份"))
	if _, err := bp.makeBackupLocked("PreRestore"); err != nil {
		return fmt.Errorf("pre-restore backup: %w", err)
	}
	entries, err := os.ReadDir(bp.Source)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(bp.Source, entry.Name())
		if skip, _ := bp.skipDest(nil, path, ""); skip {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	bp.Println(color.YellowString("正在复制存档"))
	if err := copy.Copy(filepath.Join(bp.Dest, name), bp.Source); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	bp.Println(color.GreenString("回档结束"))
	if err := bp.prune(); err != nil {
		bp.Println(color.RedString("清理旧备份失败: "), err)
	}
	for _, p := range bp.pm.Plugins() {
		reloader, ok := p.(pluginabi.Reloader)
		if !ok {
			continue
		}
		if err := reloader.Reload(); err != nil {
			bp.Println(color.RedString("插件 "), color.BlueString(p.DisplayName()), color.RedString(" 重新加载失败: "), err)
		}
	}
	return nil
}

func (bp *BackupPlugin) showList(player string, list []string, page int) {
	pages := (len(list) + BackupPlugin_PageSize - 1) / BackupPlugin_PageSize
	if page < 1 || page > pages {
		bp.Tell(player, []textformat.Message{{Text: "This page is empty.", Color: textformat.Red}})
		return
	}
	start := (page - 1) * BackupPlugin_PageSize
	end := min(len(list), start+BackupPlugin_PageSize)
	message := []textformat.Message{
		{Text: "Page ", Color: textformat.Aqua},
		{Text: strconv.Itoa(page), Color: textformat.Light_Purple},
		{Text: "/", Color: textformat.Aqua},
		{Text: strconv.Itoa(pages), Color: textformat.Light_Purple},
	}
	for index, item := range list[start:end] {
		message = append(message,
			textformat.Message{Text: fmt.Sprintf("\n%d. ", start+index+1), Color: textformat.Aqua},
			textformat.Message{Text: item, Color: textformat.Yellow},
		)
	}
	if page < pages {
		message = append(message, textformat.Message{Text: fmt.Sprintf("\nbackup list %d for more", page+1), Color: textformat.Gray})
	}
	bp.Tell(player, message)
}

func (bp *BackupPlugin) announce(now time.Time) {
	bp.Broadcast([]textformat.Message{
		{Text: "=== ", Color: textformat.Yellow},
		{Text: "Data backup", Color: textformat.Light_Purple},
		{Text: " time: ", Color: textformat.Green},
		{Text: now.Format(time.RFC3339), Color: textformat.Aqua, Bold: true},
		{Text: " ===", Color: textformat.Yellow},
	})
}

func (bp *BackupPlugin) Cli(player string, args ...string) {
	if !bp.RequirePermission(player, BackupPlugin_Permission) {
		return
	}
	if len(args) == 0 {
		bp.Tell(player, []textformat.Message{{Text: "Usage: backup make <comment> | list [page] | restore <name>", Color: textformat.Yellow}})
		return
	}
	switch strings.ToLower(args[0]) {
	case "make":
		if len(args) < 2 {
			bp.Tell(player, []textformat.Message{{Text: "Please give a comment.", Color: textformat.Red}})
			return
		}
		bp.announce(time.Now())
		name, err := bp.MakeBackup(strings.Join(args[1:], " "))
		if err != nil {
			bp.TellError(player, err)
			return
		}
		bp.Tell(player, []textformat.Message{
			{Text: "Backup done: ", Color: textformat.Green},
			{Text: name, Color: textformat.Yellow},
		})
	case "list":
		list, err := bp.List()
		if err != nil {
			bp.TellError(player, err)
			return
		}
		if len(list) == 0 {
			bp.Tell(player, []textformat.Message{{Text: "No backups.", Color: textformat.Red}})
			return
		}
		page := 1
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil {
				page = n
			}
		}
		bp.showList(player, list, page)
	case "restore", "rollback":
		if len(args) < 2 {
			bp.Tell(player, []textformat.Message{{Text: "Usage: backup restore <name>", Color: textformat.Yellow}})
			return
		}
		if err := bp.Restore(args[1]); err != nil {
			bp.TellError(player, err)
			return
		}
		bp.Broadcast([]textformat.Message{
			{Text: "Data restored from ", Color: textformat.Green},
			{Text: args[1], Color: textformat.Yellow},
		})
	default:
		bp.Tell(player, []textformat.Message{{Text: "Unknown command.", Color: textformat.Red}})
	}
}

func (bp *BackupPlugin) Init(pm pluginabi.PluginManager) (err error) {
	bp.pm = pm
	cfg := pm.Config()
	if bp.Source == "" {
		bp.Source = pm.DataDirectory()
	}
	if bp.Dest == "" {
		bp.Dest = cfg.Backup.Directory
	}
	if bp.Keep == 0 {
		bp.Keep = cfg.Backup.Keep
	}
	if bp.Source, err = filepath.Abs(bp.Source); err != nil {
		return err
	}
	if bp.Dest, err = filepath.Abs(bp.Dest); err != nil {
		return err
	}
	bp.cron, err = gocron.NewScheduler()
	if err != nil {
		return err
	}
	if cfg.Backup.Enabled {
		_, err = bp.cron.NewJob(gocron.CronJob(cfg.Backup.Cron, false), gocron.NewTask(func() {
			bp.announce(time.Now())
			if _, err := bp.MakeBackup("AutoBackup"); err != nil {
				bp.Println(color.RedString("自动备份失败: "), err)
			}
		}), gocron.WithSingletonMode(gocron.LimitModeReschedule))
		if err != nil {
			return err
		}
	}
	err = bp.BasePlugin.Init(pm, bp)
	if err != nil {
		return err
	}
	bp.RegisterCommand("backup", "make <comment> | list [page] | restore <name>", bp.Cli)
	return nil
}

func (bp *BackupPlugin) Start() {
	bp.cron.Start()
}

func (bp *BackupPlugin) Pause() {
	bp.cron.StopJobs()
}
