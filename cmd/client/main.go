package main

import (
	"log"

	tea "github.com/charmbracelet/bubbletea"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/fenggwsx/DriftChat/chat"
	"github.com/fenggwsx/DriftChat/internal/client"
	"github.com/fenggwsx/DriftChat/internal/config"
)

func main() {
	jww.SetStdoutThreshold(jww.LevelError)

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.UserID == "" {
		log.Fatal("DRIFTCHAT_USER_ID is required")
	}

	params := chat.DefaultParams(cfg.AppID, cfg.WSURL)
	params.AckTimeout = cfg.AckTimeout
	params.LoginTimeout = cfg.LoginTimeout
	params.CachePath = cfg.CachePath

	sdk, err := chat.NewClient(params)
	if err != nil {
		log.Fatalf("creating client: %v", err)
	}
	defer sdk.Close()

	model := client.NewApp(cfg, sdk)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("client exited: %v", err)
	}
}
