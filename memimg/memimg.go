package memimg

import (
	"image"
	"sync"
)

// 内存里的帧名
const (
	KeyFrame   = "frame"   // 最近一次渲染的原始帧
	KeyPreview = "preview" // 放大后的预览帧
)

// Store keeps the most recent frames in memory so device messages and the
// preview endpoint can reuse them without re-rendering.
type Store struct {
	mu     sync.RWMutex
	frames map[string]image.Image
}

func New() *Store {
	return &Store{frames: make(map[string]image.Image)}
}

// Put 保存一帧，覆盖同名旧帧
func (s *Store) Put(name string, img image.Image) {
	s.mu.Lock()
	s.frames[name] = img
	s.mu.Unlock()
}

// GetFrameFromMemory returns the frame stored under name.
func (s *Store) GetFrameFromMemory(name string) (image.Image, bool) {
	s.mu.RLock()
	img, exists := s.frames[name]
	s.mu.RUnlock()
	return img, exists
}
