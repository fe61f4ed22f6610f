package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"options-mm/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	watchdog := flag.Duration("healthInterval", 10*time.Second, "健康检查间隔")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	notify(daemon.SdNotifyReady)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(*watchdog)
	defer ticker.Stop()

	exitCode := 0
loop:
	for {
		select {
		case sig := <-sigCh:
			log.Printf("收到信号 %s，开始退出（撤单后停止）", sig)
			break loop
		case <-c.Done():
			log.Printf("做市循环已退出")
			exitCode = 1
			break loop
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				log.Printf("健康检查失败: %v", err)
				continue
			}
			notify(daemon.SdNotifyWatchdog)
		}
	}

	notify(daemon.SdNotifyStopping)
	if err := c.Stop(); err != nil {
		log.Printf("退出时出错: %v", err)
		exitCode = 1
	}
	cancel()
	os.Exit(exitCode)
}

// notify 非 systemd 环境下 SdNotify 返回 false，忽略即可。
func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("sd_notify %s: %v", state, err)
	}
}
