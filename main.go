package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/hoshinonyaruko/pixoo-snake/api"
	"github.com/hoshinonyaruko/pixoo-snake/config"
	"github.com/hoshinonyaruko/pixoo-snake/game"
	"github.com/hoshinonyaruko/pixoo-snake/memimg"
	"github.com/hoshinonyaruko/pixoo-snake/preview"
	"github.com/hoshinonyaruko/pixoo-snake/sqlite"
)

const configPath = "./config.json"

func main() {
	// Initialize the configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设备地址簿
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open device database %s: %v", cfg.DBPath, err)
	}
	defer db.Close()

	frames := memimg.New()
	hub := preview.NewHub()
	session := game.NewSession(game.Options{
		Difficulty:   cfg.Difficulty,
		ShowGrid:     cfg.ShowGrid,
		Interval:     time.Duration(cfg.TickMs) * time.Millisecond,
		PushTimeout:  time.Duration(cfg.PushTimeoutMs) * time.Millisecond,
		PreviewScale: cfg.PreviewScale,
		Frames:       frames,
		Hub:          hub,
		Book:         sqlite.Book{DB: db},
	})
	defer session.Close()

	// 配置热更新
	if err := config.WatchConfig(configPath, session.ApplyConfig); err != nil {
		log.Printf("Config hot reload disabled: %v", err)
	}

	connectInitial(session, db, cfg.SinkAddr)

	router := api.NewRouter(session, frames, hub, db)
	// 从配置单例读取端口 监听
	if err := router.Run(":" + config.GetConfigValue("port").(string)); err != nil {
		log.Fatalf("HTTP server stopped: %v", err)
	}
}

// connectInitial 先试上次连上的设备，再试配置里的地址，都失败也能玩
func connectInitial(session *game.Session, db *sql.DB, fallback string) {
	var candidates []string
	if last, err := sqlite.LastConnectedDevice(db); err != nil {
		log.Printf("Failed to read device history: %v", err)
	} else if last != "" {
		candidates = append(candidates, last)
	}
	if fallback != "" && (len(candidates) == 0 || candidates[0] != fallback) {
		candidates = append(candidates, fallback)
	}

	for _, addr := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := session.Connect(ctx, addr)
		cancel()
		if err == nil {
			return
		}
	}
	log.Println("Initial connection to display failed.")
}
