package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/config"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/gamemanager"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/plugins"
	"github.com/fatih/color"
)

var scope = color.RedString("GuardDaemon")

// remoteCommand runs line as CONSOLE on the daemon listening at address. "regions" lists
// the regions of the daemon instead.
func remoteCommand(address string, line string) error {
	client, conn, err := core.Dial(address)
	if err != nil {
		return err
	}
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if line == "regions" {
		records, err := client.Regions(ctx)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%s %s [%d,%d,%d] -> [%d,%d,%d] by %s\n", r.Name, r.World, r.MinX, r.MinY, r.MinZ, r.MaxX, r.MaxY, r.MaxZ, r.Creator)
		}
		return nil
	}
	return client.Dispatch(ctx, pluginabi.Console, line)
}

func main() {
	configPath := flag.String("config", "guard.toml", "daemon configuration file")
	remote := flag.String("remote", "", "send the arguments as a console command to the daemon at this address")
	flag.Parse()

	if *remote != "" {
		if err := remoteCommand(*remote, strings.Join(flag.Args(), " ")); err != nil {
			fmt.Fprintln(os.Stderr, color.RedString("远程命令失败: %s", err.Error()))
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("加载配置失败: %s", err.Error()))
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.Daemon.DataDirectory, 0755); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("无法创建数据目录: %s", err.Error()))
		os.Exit(1)
	}

	var console io.Writer = os.Stdout
	var server *gamemanager.Process
	if cfg.Server.StartScript != "" {
		server = gamemanager.New(cfg.Server.StartScript, nil)
		console = server
	}
	pm := core.NewPluginManager(cfg, core.NewConsoleHost(console))
	if server != nil {
		server.SetLogger(pm)
		pm.SetServer(server)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	regions := &plugins.RegionPlugin{}
	if err := pm.RegisterPlugin(regions); err != nil {
		pm.Println(scope, color.RedString("区域保护无法加载，退出"))
		os.Exit(1)
	}
	pm.RegisterPlugin(&plugins.RankPlugin{})
	pm.RegisterPlugin(&plugins.RoulettePlugin{})
	pm.RegisterPlugin(&plugins.BackupPlugin{})
	pm.RegisterPlugin(&plugins.StatusPlugin{})
	if cfg.Console.REPL {
		pm.RegisterPlugin(&core.REPLPlugin{OnExit: stop})
	}

	var serverDone <-chan struct{}
	if server != nil {
		if err := server.Start(); err != nil {
			pm.Println(scope, color.RedString("无法启动服务器: "), err)
			pm.Shutdown()
			os.Exit(1)
		}
		serverDone = server.Done()
	}
	pm.Start()

	var rpc *core.GuardServer
	if cfg.RPC.Enabled {
		lis, err := net.Listen("tcp", cfg.RPC.Address)
		if err != nil {
			pm.Println(scope, color.RedString("RPC 监听失败: "), err)
		} else {
			rpc = core.NewGuardServer(pm, regions)
			go func() {
				if err := rpc.Serve(lis); err != nil {
					pm.Println(scope, color.RedString("RPC 服务已停止: "), err)
				}
			}()
		}
	}

	select {
	case <-ctx.Done():
	case <-serverDone:
		pm.Println(scope, color.YellowString("服务器已退出，守护进程随之关闭"))
	}

	if rpc != nil {
		rpc.Stop()
	}
	pm.Shutdown()
	if server != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil && !errors.Is(err, gamemanager.ErrMinecraftNotRunning) {
			pm.Println(scope, color.RedString("关闭服务器失败: "), err)
		}
	}
}
