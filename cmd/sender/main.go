package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kataras/golog"

	"CamLink/client/config"
	"CamLink/client/service/capture"
	"CamLink/client/service/stream"
)

func main() {
	golog.SetTimeFormat("2006/01/02 15:04:05")
	cfg, err := config.Load()
	if err != nil {
		golog.Fatalf("%v", err)
	}

	var dev capture.Device
	switch cfg.Source {
	case "screen":
		dev = capture.NewScreenDevice(0)
	default:
		dev = capture.NewSyntheticDevice(capture.ChromaInterleaved)
	}

	streamer := stream.New(stream.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ConnectTimeout: cfg.ConnectTimeout,
		Capture: capture.Config{
			Width:  cfg.Width,
			Height: cfg.Height,
			FPS:    cfg.FPS,
		},
		JPEGQuality: cfg.JPEGQuality,
		MinInterval: cfg.MinInterval,
	}, dev)

	fatal := make(chan error, 1)
	streamer.OnError = func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}
	if err := streamer.Start(); err != nil {
		golog.Fatalf("start streaming: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		golog.Infof("received %s, stopping", sig)
	case err := <-fatal:
		golog.Errorf("stream failed: %v", err)
	}
	streamer.Stop()
}
