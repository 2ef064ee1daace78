package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// AppConfig holds the structure of the configuration
type AppConfig struct {
	Port          string `json:"port"`
	SinkAddr      string `json:"sinkaddr"`
	Difficulty    string `json:"difficulty"`
	ShowGrid      bool   `json:"showgrid"`
	TickMs        int    `json:"tickms"`
	PushTimeoutMs int    `json:"pushtimeoutms"`
	PreviewScale  int    `json:"previewscale"`
	DBPath        string `json:"dbpath"`
}

// DefaultBlockSize 未知难度时使用的方块大小
const DefaultBlockSize = 2

// Difficulties 难度名到方块大小的映射，难度只改变方块大小，不改变速度
var Difficulties = map[string]int{
	"Easy":   8,
	"Medium": 4,
	"Hard":   2,
	"Insane": 1,
}

var (
	instance *AppConfig
	once     sync.Once
	mu       sync.RWMutex
)

func defaults() *AppConfig {
	return &AppConfig{
		Port:          "38870",
		SinkAddr:      "192.168.1.215",
		Difficulty:    "Hard",
		ShowGrid:      false,
		TickMs:        200,
		PushTimeoutMs: 1500,
		PreviewScale:  8,
		DBPath:        "devices.db",
	}
}

// LoadConfig initializes and returns the instance of AppConfig
func LoadConfig(filePath string) (*AppConfig, error) {
	var loadErr error
	once.Do(func() {
		cfg, err := initConfig(filePath)
		if err != nil {
			loadErr = err
			return
		}
		mu.Lock()
		instance = cfg
		mu.Unlock()
	})
	if loadErr != nil {
		return nil, loadErr
	}
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return nil, fmt.Errorf("config %s failed to load earlier", filePath)
	}
	return instance, nil
}

// initConfig loads the file if it exists, otherwise writes the defaults to it
func initConfig(filePath string) (*AppConfig, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		cfg := defaults()
		if err := saveConfig(filePath, cfg); err != nil {
			log.Printf("Failed to write default config %s: %v", filePath, err)
		}
		return cfg, nil
	}
	cfg, err := loadConfig(filePath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", filePath, err)
	}
	return cfg, nil
}

// loadConfig reads the settings from the file on top of the defaults
func loadConfig(filePath string) (*AppConfig, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := defaults()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// saveConfig saves the given settings to the file
func saveConfig(filePath string, cfg *AppConfig) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

// Reload re-reads the file and swaps the live instance. A broken file keeps
// the previous values.
func Reload(filePath string) error {
	cfg, err := loadConfig(filePath)
	if err != nil {
		return err
	}
	mu.Lock()
	instance = cfg
	mu.Unlock()
	return nil
}

// GetConfigValue returns the value of the configuration by key
func GetConfigValue(key string) interface{} {
	mu.RLock()
	defer mu.RUnlock()
	cfg := instance
	if cfg == nil {
		cfg = defaults()
	}
	switch key {
	case "port":
		return cfg.Port
	case "sinkaddr":
		return cfg.SinkAddr
	case "difficulty":
		return cfg.Difficulty
	case "showgrid":
		return cfg.ShowGrid
	case "tickms":
		return cfg.TickMs
	case "pushtimeoutms":
		return cfg.PushTimeoutMs
	case "previewscale":
		return cfg.PreviewScale
	case "dbpath":
		return cfg.DBPath
	default:
		return ""
	}
}

// BlockSizeFor looks up the block size of a difficulty name.
func BlockSizeFor(difficulty string) int {
	if size, ok := Difficulties[difficulty]; ok {
		return size
	}
	return DefaultBlockSize
}

// WatchConfig 监听配置文件，写入后热更新并回调 onChange
func WatchConfig(filePath string, onChange func(*AppConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// 监听目录而不是文件，编辑器保存时常常是替换文件
	if err := watcher.Add(filepath.Dir(filePath)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(filePath)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					if err := Reload(filePath); err != nil {
						log.Printf("Config reload failed: %v", err)
						continue
					}
					log.Printf("Config reloaded from %s", filePath)
					if onChange != nil {
						mu.RLock()
						cfg := *instance
						mu.RUnlock()
						onChange(&cfg)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Println("config watcher error:", err)
			}
		}
	}()
	return nil
}
