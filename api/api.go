package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoshinonyaruko/pixoo-snake/display"
	"github.com/hoshinonyaruko/pixoo-snake/game"
	"github.com/hoshinonyaruko/pixoo-snake/memimg"
	"github.com/hoshinonyaruko/pixoo-snake/preview"
	"github.com/hoshinonyaruko/pixoo-snake/render"
	"github.com/hoshinonyaruko/pixoo-snake/sqlite"
	"github.com/hoshinonyaruko/pixoo-snake/structs"
)

// connectTimeout 连接设备的总超时
const connectTimeout = 5 * time.Second

// NewRouter 注册所有路由
func NewRouter(s *game.Session, frames *memimg.Store, hub *preview.Hub, db *sql.DB) *gin.Engine {
	router := gin.Default()
	router.GET("/state", StateHandler(s))
	// 处理玩家改变方向
	router.POST("/direction", DirectionHandler(s))
	router.POST("/start", StartHandler(s))
	router.POST("/stop", CommandHandler(s.Stop))
	router.POST("/pause", CommandHandler(s.Pause))
	router.POST("/resume", CommandHandler(s.Resume))
	router.POST("/grid", GridHandler(s))
	router.POST("/difficulty", DifficultyHandler(s))
	router.POST("/connect", ConnectHandler(s))
	router.GET("/devices", DevicesHandler(db))
	// 本地预览
	router.GET("/preview.png", FrameHandler(frames, memimg.KeyPreview))
	router.GET("/frame.png", FrameHandler(frames, memimg.KeyFrame))
	router.GET("/ws", gin.WrapF(hub.ServeWS))
	return router
}

func StateHandler(s *game.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Snapshot())
	}
}

func DirectionHandler(s *game.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		dir, ok := structs.ParseDirection(c.Query("dir"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dir must be one of up, down, left, right"})
			return
		}
		// 被拒绝的方向不是错误，只是没有生效
		accepted := s.SetDirection(dir)
		c.JSON(http.StatusOK, gin.H{"accepted": accepted})
	}
}

func StartHandler(s *game.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Start(c.Query("difficulty")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.Snapshot())
	}
}

// CommandHandler wraps a state transition that takes no arguments.
func CommandHandler(cmd func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cmd(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, game.ErrNoGame) || errors.Is(err, game.ErrBadTransition) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	}
}

func GridHandler(s *game.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"show_grid": s.ToggleGrid()})
	}
}

func DifficultyHandler(s *game.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Query("name")
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query parameter: name"})
			return
		}
		s.SetDifficulty(name)
		c.JSON(http.StatusOK, gin.H{"difficulty": name})
	}
}

func ConnectHandler(s *game.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Query("ip")
		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid IP address"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), connectTimeout)
		defer cancel()
		if err := s.Connect(ctx, ip); err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, display.ErrEmptyAddress) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": "Could not connect to display at " + ip})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Successfully connected to display at " + ip})
	}
}

func DevicesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		devices, err := sqlite.ListDevices(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to list devices"})
			return
		}
		c.JSON(http.StatusOK, devices)
	}
}

// FrameHandler serves the stored image under key as PNG, blank before the
// first frame.
func FrameHandler(frames *memimg.Store, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		img, ok := frames.GetFrameFromMemory(key)
		if !ok {
			img = render.Blank()
		}
		data, err := render.EncodePNG(img)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to encode preview"})
			return
		}
		c.Data(http.StatusOK, "image/png", data)
	}
}
