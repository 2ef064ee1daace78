// Package game ties the board, the scheduler and the display together.
// All mutations go through the session mutex, so commands and ticks see one
// writer at a time.
package game

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/hoshinonyaruko/pixoo-snake/config"
	"github.com/hoshinonyaruko/pixoo-snake/display"
	"github.com/hoshinonyaruko/pixoo-snake/memimg"
	"github.com/hoshinonyaruko/pixoo-snake/render"
	"github.com/hoshinonyaruko/pixoo-snake/scheduler"
	"github.com/hoshinonyaruko/pixoo-snake/snake"
	"github.com/hoshinonyaruko/pixoo-snake/structs"
)

// 设备上显示的提示
const (
	MsgPaused  = "Paused"
	MsgStopped = "Game Stopped"
	MsgOver    = "Game Over!"
	MsgWin     = "You Win!"
)

// ErrNoGame is returned by commands that need a game in progress.
var ErrNoGame = errors.New("no game in progress")

// ErrBadTransition is returned when a command does not apply to the current status.
var ErrBadTransition = errors.New("command not allowed in current state")

// Broadcaster receives encoded preview frames.
type Broadcaster interface {
	Broadcast(frame []byte)
}

// AddressBook remembers display addresses.
type AddressBook interface {
	Remember(address string, connected bool) error
}

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Difficulty   string
	ShowGrid     bool
	Interval     time.Duration
	PushTimeout  time.Duration
	PreviewScale int
	Dial         display.Dialer
	Rand         snake.Rand
	AfterFunc    scheduler.AfterFunc
	Frames       *memimg.Store
	Hub          Broadcaster
	Book         AddressBook
}

// State is a read-only snapshot for the API.
type State struct {
	Board      *structs.Board `json:"board"`
	Difficulty string         `json:"difficulty"`
	ShowGrid   bool           `json:"show_grid"`
	Connected  bool           `json:"connected"`
	SinkAddr   string         `json:"sink_addr"`
	Message    string         `json:"message"`
}

// Session owns one board at a time plus the display handle.
type Session struct {
	mu         sync.Mutex
	board      *structs.Board
	difficulty string
	showGrid   bool
	message    string
	lastFrame  image.Image // 最近一次渲染的画面，提示文字叠在它上面
	seq        uint64
	rng        snake.Rand
	sched      *scheduler.Scheduler

	sink     display.Sink
	sinkAddr string
	dial     display.Dialer

	pushMu       sync.Mutex // 保证一帧的 clear/draw/push 不被打断
	published    uint64     // 已推送的最大序号，由 pushMu 保护
	pushTimeout  time.Duration
	previewScale int
	frames       *memimg.Store
	hub          Broadcaster
	book         AddressBook
}

// NewSession builds a session in the Idle state.
func NewSession(opts Options) *Session {
	s := &Session{
		difficulty:   opts.Difficulty,
		showGrid:     opts.ShowGrid,
		rng:          opts.Rand,
		dial:         opts.Dial,
		pushTimeout:  opts.PushTimeout,
		previewScale: opts.PreviewScale,
		frames:       opts.Frames,
		hub:          opts.Hub,
		book:         opts.Book,
	}
	if s.difficulty == "" {
		s.difficulty = "Hard"
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.dial == nil {
		s.dial = display.Dial
	}
	if s.pushTimeout <= 0 {
		s.pushTimeout = 1500 * time.Millisecond
	}
	if s.previewScale <= 0 {
		s.previewScale = 8
	}
	if s.frames == nil {
		s.frames = memimg.New()
	}
	after := opts.AfterFunc
	if after == nil {
		s.sched = scheduler.New(opts.Interval, s.tick)
	} else {
		s.sched = scheduler.NewWithTimer(opts.Interval, s.tick, after)
	}
	return s
}

// frame is what gets published after the lock is released. Everything it
// needs is captured under the session lock; seq orders frames that race
// for pushMu.
type frame struct {
	seq     uint64
	img     image.Image
	text    string
	sink    display.Sink
	scale   int
	timeout time.Duration
}

// Start 开新局，立即推一帧并排下一次 tick
func (s *Session) Start(difficulty string) error {
	s.mu.Lock()
	if difficulty != "" {
		s.difficulty = difficulty
	}
	board, err := snake.Reset(s.difficulty, s.rng)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.board = board
	f := s.renderLocked(s.scoreText())
	s.sched.Arm()
	s.mu.Unlock()

	log.Printf("Game started (%s, block size %d)", board.Difficulty, board.BlockSize)
	s.publish(f)
	return nil
}

// Stop ends the game; no further tick touches the board.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return ErrNoGame
	}
	if !snake.ApplyStatus(s.board, snake.EventStop) {
		s.mu.Unlock()
		return ErrBadTransition
	}
	s.sched.Cancel()
	f := s.messageLocked(MsgStopped)
	s.mu.Unlock()

	s.publish(f)
	return nil
}

// Pause flips the status only. A tick that is already pending finds the
// board paused and does nothing.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return ErrNoGame
	}
	if !snake.ApplyStatus(s.board, snake.EventPause) {
		s.mu.Unlock()
		return ErrBadTransition
	}
	f := s.messageLocked(MsgPaused)
	s.mu.Unlock()

	s.publish(f)
	return nil
}

// Resume continues a paused game and re-arms the scheduler.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return ErrNoGame
	}
	if !snake.ApplyStatus(s.board, snake.EventResume) {
		s.mu.Unlock()
		return ErrBadTransition
	}
	f := s.renderLocked(s.scoreText())
	s.sched.Arm()
	s.mu.Unlock()

	s.publish(f)
	return nil
}

// SetDirection forwards a direction change; rejected changes return false.
func (s *Session) SetDirection(dir structs.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return false
	}
	return snake.SetDirection(s.board, dir)
}

// ToggleGrid flips the grid overlay and redraws the current board.
func (s *Session) ToggleGrid() bool {
	s.mu.Lock()
	s.showGrid = !s.showGrid
	on := s.showGrid
	if s.board == nil {
		s.mu.Unlock()
		return on
	}
	f := s.renderLocked(s.statusText())
	s.mu.Unlock()

	s.publish(f)
	return on
}

// SetDifficulty picks the difficulty for the next Start. Unknown names are
// kept and fall back to the default block size when the game starts.
func (s *Session) SetDifficulty(name string) {
	s.mu.Lock()
	s.difficulty = name
	s.mu.Unlock()
}

// Connect dials the display and keeps the handle. On failure the previous
// sink is kept and the game stays playable.
func (s *Session) Connect(ctx context.Context, address string) error {
	sink, err := s.dial(ctx, address)
	if s.book != nil && !errors.Is(err, display.ErrEmptyAddress) {
		if berr := s.book.Remember(address, err == nil); berr != nil {
			log.Printf("Failed to remember device %s: %v", address, berr)
		}
	}
	if err != nil {
		log.Printf("Failed to connect to display: %v", err)
		return err
	}

	s.mu.Lock()
	s.sink = sink
	s.sinkAddr = address
	var f *frame
	if s.board != nil {
		f = s.messageLocked(s.statusText())
	}
	s.mu.Unlock()

	log.Printf("Connected to display at %s", address)
	if f != nil {
		s.publish(f)
	}
	return nil
}

// ApplyConfig picks up hot-reloaded settings. The difficulty only matters
// for the next game; a grid change redraws the current board.
func (s *Session) ApplyConfig(cfg *config.AppConfig) {
	s.mu.Lock()
	if cfg.Difficulty != "" && (s.board == nil || s.board.Status != structs.Running) {
		s.difficulty = cfg.Difficulty
	}
	gridChanged := s.showGrid != cfg.ShowGrid
	s.showGrid = cfg.ShowGrid
	if cfg.TickMs > 0 {
		s.sched.SetInterval(time.Duration(cfg.TickMs) * time.Millisecond)
	}
	if cfg.PushTimeoutMs > 0 {
		s.pushTimeout = time.Duration(cfg.PushTimeoutMs) * time.Millisecond
	}
	if cfg.PreviewScale > 0 {
		s.previewScale = cfg.PreviewScale
	}
	var f *frame
	if gridChanged && s.board != nil {
		f = s.renderLocked(s.statusText())
	}
	s.mu.Unlock()

	if f != nil {
		s.publish(f)
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Difficulty: s.difficulty,
		ShowGrid:   s.showGrid,
		Connected:  s.sink != nil,
		SinkAddr:   s.sinkAddr,
		Message:    s.message,
	}
	if s.board != nil {
		b := s.board.Clone()
		st.Board = &b
	}
	return st
}

// Close cancels any pending tick.
func (s *Session) Close() {
	s.sched.Cancel()
}

// tick is the scheduler callback. The status check at the top is the
// cancellation gate for timers that fire late.
func (s *Session) tick() bool {
	s.mu.Lock()
	if s.board == nil || s.board.Status != structs.Running {
		s.mu.Unlock()
		return false
	}
	out := snake.Step(s.board, s.rng)
	var f *frame
	switch {
	case out.Collided:
		log.Printf("Game over, score %d", s.board.Score)
		f = s.messageLocked(MsgOver)
	case out.Won:
		// 结束提示叠在上一帧上，最后一口不再单独画
		log.Printf("Game won, score %d", s.board.Score)
		f = s.messageLocked(MsgWin)
	case out.Moved:
		f = s.renderLocked(s.scoreText())
	}
	again := s.board.Status == structs.Running
	s.mu.Unlock()

	if f != nil {
		s.publish(f)
	}
	return again
}

func (s *Session) scoreText() string {
	return fmt.Sprintf("Score: %d", s.board.Score)
}

// statusText 与当前状态对应的提示
func (s *Session) statusText() string {
	switch s.board.Status {
	case structs.Paused:
		return MsgPaused
	case structs.Won:
		return MsgWin
	case structs.Over:
		if s.message != "" {
			return s.message
		}
		return MsgOver
	default:
		return s.scoreText()
	}
}

func (s *Session) renderLocked(text string) *frame {
	s.lastFrame = render.Render(s.board, s.showGrid)
	return s.frameLocked(s.lastFrame, text)
}

// messageLocked reuses the last rendered frame with a new text.
func (s *Session) messageLocked(text string) *frame {
	if s.lastFrame == nil {
		s.lastFrame = render.Render(s.board, s.showGrid)
	}
	return s.frameLocked(s.lastFrame, text)
}

func (s *Session) frameLocked(img image.Image, text string) *frame {
	s.message = text
	s.seq++
	return &frame{
		seq:     s.seq,
		img:     img,
		text:    text,
		sink:    s.sink,
		scale:   s.previewScale,
		timeout: s.pushTimeout,
	}
}

// publish updates the preview and pushes to the display. A frame older than
// the last published one is dropped. Display errors are logged and never
// stop the game.
func (s *Session) publish(f *frame) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if f.seq <= s.published {
		return
	}
	s.published = f.seq

	s.frames.Put(memimg.KeyFrame, f.img)
	preview := render.Preview(f.img, f.scale)
	s.frames.Put(memimg.KeyPreview, preview)
	if s.hub != nil {
		data, err := render.EncodePNG(preview)
		if err != nil {
			log.Printf("Failed to encode preview: %v", err)
		} else {
			s.hub.Broadcast(data)
		}
	}

	if f.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := display.Show(ctx, f.sink, f.img, f.text); err != nil {
		log.Printf("Failed to push frame %q to display: %v", f.text, err)
	}
}
