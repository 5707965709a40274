package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kataras/golog"

	"CamLink/server/api"
	"CamLink/server/config"
	"CamLink/server/handler/session"
)

func main() {
	golog.SetTimeFormat("2006/01/02 15:04:05")
	cfg, err := config.Load()
	if err != nil {
		golog.Fatalf("%v", err)
	}

	manager := session.NewManager()
	defer manager.Close()
	for _, cam := range cfg.Cameras {
		host := cam.Host
		if host == "" {
			host = "0.0.0.0"
		}
		if _, err := manager.Add(cam.Name, host, cam.Port); err != nil {
			golog.Fatalf("open camera %s: %v", cam.Name, err)
		}
	}

	server := api.New(manager)
	go func() {
		if err := server.Run(cfg.APIAddr); err != nil {
			golog.Fatalf("api server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	golog.Infof("received %s, shutting down", sig)
}
