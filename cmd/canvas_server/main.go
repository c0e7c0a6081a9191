package main

import (
	"log"

	canvasserver "canvas_server"
)

func main() {
	cfg := canvasserver.LoadAppConfig()

	opts := []canvasserver.Option{
		canvasserver.WithHost(cfg.Host),
		canvasserver.WithPort(cfg.Port),
	}
	if cfg.ConfigFile != "" {
		opts = append(opts, canvasserver.WithConfigFile(cfg.ConfigFile))
	}
	if cfg.RecordsURL != "" {
		opts = append(opts, canvasserver.WithRecordsURL(cfg.RecordsURL))
	}
	if cfg.Model != "" {
		opts = append(opts, canvasserver.WithModel(cfg.Model))
	}

	s := canvasserver.New(opts...)
	if err := s.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
