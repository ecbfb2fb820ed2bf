package main

import "collab-chat/internal/config"

func loadConfig() *config.Config {
	cfg := config.Load()
	return &cfg
}
