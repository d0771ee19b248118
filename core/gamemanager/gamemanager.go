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

// Package gamemanager supervises the game server process and feeds its console.
package gamemanager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"github.com/fatih/color"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	ErrMinecraftAlreadyRunning = errors.New("minecraft server is already running")
	ErrMinecraftNotRunning     = errors.New("minecraft server is not running")
)

type Logger interface {
	Println(scope string, a ...any) (int, error)
}

type MinecraftPty struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (pty *MinecraftPty) Write(p []byte) (int, error) {
	return pty.stdin.Write(p)
}

func (pty *MinecraftPty) Close() error {
	return pty.stdin.Close()
}

// Process is the supervised game server. Its Write method feeds the server console, so
// it can back a core.ConsoleHost.
type Process struct {
	Script string

	log     Logger
	lock    sync.Mutex
	cmd     *exec.Cmd
	pty     *MinecraftPty
	started time.Time
	done    chan struct{}
}

func New(script string, log Logger) *Process {
	return &Process{Script: script, log: log}
}

// SetLogger sets where the output of the server goes. It must be called before Start.
func (p *Process) SetLogger(log Logger) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.log = log
}

func (p *Process) Println(a ...any) (int, error) {
	if p.log == nil {
		return 0, nil
	}
	return p.log.Println(color.RedString("GameManager"), a...)
}

// Start launches the start script in its own directory.
func (p *Process) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.cmd != nil {
		return ErrMinecraftAlreadyRunning
	}
	p.Println(color.YellowString("启动服务器: "), color.MagentaString(p.Script))
	cmd := exec.Command(p.Script)
	cmd.Dir = filepath.Dir(p.Script)
	cmd.SysProcAttr = MinecraftProcess_SysProcAttr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	pty := &MinecraftPty{stdin: stdin, stdout: stdout, stderr: stderr}
	pty.stdin = pty.writerWrapper(stdin)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Script, err)
	}
	p.cmd = cmd
	p.pty = pty
	p.started = time.Now()
	p.done = make(chan struct{})
	go p.stopDetect(cmd, pty, p.done)
	return nil
}

func (p *Process) logForwardWorker(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.Println(color.YellowString("服务器日志: "), color.CyanString(scanner.Text()))
	}
}

func (p *Process) stopDetect(cmd *exec.Cmd, pty *MinecraftPty, done chan struct{}) {
	var wg sync.WaitGroup
	wg.Add(2)
	go p.logForwardWorker(pty.readerWrapper(pty.stdout), &wg)
	go p.logForwardWorker(pty.readerWrapper(pty.stderr), &wg)
	wg.Wait()
	err := cmd.Wait()
	pty.Close()
	p.lock.Lock()
	p.cmd = nil
	p.pty = nil
	p.lock.Unlock()
	if err != nil {
		p.Println(color.RedString("服务器已退出: %s", err.Error()))
	} else {
		p.Println(color.YellowString("服务器已退出"))
	}
	close(done)
}

// Write sends console input to the server.
func (p *Process) Write(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.pty == nil {
		return 0, ErrMinecraftNotRunning
	}
	return p.pty.Write(b)
}

// Done is closed once the running server exited. It is nil before Start.
func (p *Process) Done() <-chan struct{} {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.done
}

func (p *Process) Status() pluginabi.ServerStatus {
	p.lock.Lock()
	cmd, started := p.cmd, p.started
	p.lock.Unlock()
	if cmd == nil || cmd.Process == nil {
		return pluginabi.ServerStatus{}
	}
	status := pluginabi.ServerStatus{
		Running: true,
		Pid:     int32(cmd.Process.Pid),
		Uptime:  time.Since(started),
	}
	MinecraftProcess, err := process.NewProcess(status.Pid)
	if err == nil {
		memoryInfo, err := MinecraftProcess.MemoryInfo()
		if err == nil {
			status.Usedmemory = memoryInfo.RSS
		}
	}
	return status
}

// Stop asks the server to stop and waits for it. The process is killed once ctx is done.
func (p *Process) Stop(ctx context.Context) error {
	p.lock.Lock()
	cmd, pty, done := p.cmd, p.pty, p.done
	p.lock.Unlock()
	if cmd == nil {
		return ErrMinecraftNotRunning
	}
	p.Println(color.YellowString("正在关闭服务器"))
	if _, err := pty.Write([]byte("stop\n")); err != nil {
		p.Println(color.RedString("写入 stop 失败: %s", err.Error()))
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.Println(color.RedString("服务器未能按时退出，强制结束"))
		cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}
