package game

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/hoshinonyaruko/pixoo-snake/config"
	"github.com/hoshinonyaruko/pixoo-snake/display"
	"github.com/hoshinonyaruko/pixoo-snake/memimg"
	"github.com/hoshinonyaruko/pixoo-snake/scheduler"
	"github.com/hoshinonyaruko/pixoo-snake/structs"
)

// fixedRand always returns the same slot, so food lands at (v*B, v*B).
type fixedRand int

func (r fixedRand) Intn(n int) int { return int(r) % n }

type manualClock struct {
	mu     sync.Mutex
	timers []func()
	last   time.Duration
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func (c *manualClock) AfterFunc(d time.Duration, f func()) scheduler.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, f)
	c.last = d
	return noopTimer{}
}

// fire runs every timer created so far, stale ones included.
func (c *manualClock) fire() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, f := range timers {
		f()
	}
}

type fakeHub struct {
	mu     sync.Mutex
	frames int
}

func (h *fakeHub) Broadcast(frame []byte) {
	h.mu.Lock()
	h.frames++
	h.mu.Unlock()
}

type fakeBook struct {
	mu      sync.Mutex
	entries map[string]bool
}

func (b *fakeBook) Remember(address string, connected bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries == nil {
		b.entries = map[string]bool{}
	}
	b.entries[address] = connected
	return nil
}

type harness struct {
	s     *Session
	clock *manualClock
	sink  *display.Recorder
	hub   *fakeHub
	book  *fakeBook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: &manualClock{},
		sink:  &display.Recorder{},
		hub:   &fakeHub{},
		book:  &fakeBook{},
	}
	h.s = NewSession(Options{
		Difficulty: "Hard",
		Rand:       fixedRand(5),
		AfterFunc:  h.clock.AfterFunc,
		Frames:     memimg.New(),
		Hub:        h.hub,
		Book:       h.book,
		Dial: func(ctx context.Context, address string) (display.Sink, error) {
			switch address {
			case "":
				return nil, display.ErrEmptyAddress
			case "bad":
				return nil, display.ErrConnect
			}
			return h.sink, nil
		},
	})
	if err := h.s.Connect(context.Background(), "192.168.1.215"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) board() *structs.Board {
	return h.s.Snapshot().Board
}

func lastText(r *display.Recorder) string {
	texts := r.Texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func TestStartPushesAndArms(t *testing.T) {
	h := newHarness(t)
	if err := h.s.Start(""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	b := h.board()
	if b.Status != structs.Running || b.BlockSize != 2 || b.Head() != (structs.Cell{X: 32, Y: 32}) {
		t.Fatalf("board after start = %+v", b)
	}
	if b.Food != (structs.Cell{X: 10, Y: 10}) {
		t.Fatalf("food = %v, want {10 10}", b.Food)
	}
	if h.sink.Pushes() != 1 || lastText(h.sink) != "Score: 0" {
		t.Fatalf("pushes = %d texts = %v", h.sink.Pushes(), h.sink.Texts())
	}
	if h.clock.last != scheduler.DefaultInterval {
		t.Fatalf("armed with %v, want %v", h.clock.last, scheduler.DefaultInterval)
	}
	if _, ok := h.s.frames.GetFrameFromMemory(memimg.KeyPreview); !ok {
		t.Fatal("preview frame not stored")
	}
	if h.hub.frames != 1 {
		t.Fatalf("hub frames = %d, want 1", h.hub.frames)
	}
}

func TestTickMovesSnake(t *testing.T) {
	h := newHarness(t)
	h.s.Start("Hard")
	h.clock.fire()
	if got := h.board().Head(); got != (structs.Cell{X: 34, Y: 32}) {
		t.Fatalf("head = %v, want {34 32}", got)
	}
	h.clock.fire()
	if got := h.board().Head(); got != (structs.Cell{X: 36, Y: 32}) {
		t.Fatalf("head = %v, want {36 32}", got)
	}
	if h.sink.Pushes() != 3 {
		t.Fatalf("pushes = %d, want 3", h.sink.Pushes())
	}
}

func TestDirectionChange(t *testing.T) {
	h := newHarness(t)
	if h.s.SetDirection(structs.Up) {
		t.Fatal("direction accepted before any game")
	}
	h.s.Start("Hard")
	if h.s.SetDirection(structs.Left) {
		t.Fatal("reversal accepted")
	}
	if !h.s.SetDirection(structs.Down) {
		t.Fatal("perpendicular change rejected")
	}
	h.clock.fire()
	if got := h.board().Head(); got != (structs.Cell{X: 32, Y: 34}) {
		t.Fatalf("head = %v, want {32 34}", got)
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	h.s.Start("Hard")
	if err := h.s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if lastText(h.sink) != MsgPaused {
		t.Fatalf("last text = %q", lastText(h.sink))
	}
	if h.s.SetDirection(structs.Up) {
		t.Fatal("direction accepted while paused")
	}

	// 暂停前排好的 tick 触发后什么都不做，也不会重排
	h.clock.fire()
	if got := h.board().Head(); got != (structs.Cell{X: 32, Y: 32}) {
		t.Fatalf("paused tick moved head to %v", got)
	}
	h.clock.fire()
	if h.s.sched.Armed() {
		t.Fatal("scheduler armed while paused")
	}
	if err := h.s.Pause(); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("second pause err = %v", err)
	}

	if err := h.s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !h.s.sched.Armed() {
		t.Fatal("resume did not re-arm")
	}
	h.clock.fire()
	if got := h.board().Head(); got != (structs.Cell{X: 34, Y: 32}) {
		t.Fatalf("head = %v, want {34 32}", got)
	}
	if err := h.s.Resume(); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("resume while running err = %v", err)
	}
}

func TestStopCancelsTicks(t *testing.T) {
	h := newHarness(t)
	if err := h.s.Stop(); !errors.Is(err, ErrNoGame) {
		t.Fatalf("stop before start err = %v", err)
	}
	h.s.Start("Hard")
	if err := h.s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.board().Status != structs.Over || lastText(h.sink) != MsgStopped {
		t.Fatalf("status = %v text = %q", h.board().Status, lastText(h.sink))
	}
	h.clock.fire()
	if got := h.board().Head(); got != (structs.Cell{X: 32, Y: 32}) {
		t.Fatalf("tick after stop moved head to %v", got)
	}
	if h.s.sched.Armed() {
		t.Fatal("scheduler armed after stop")
	}
}

func TestCollisionEndsGame(t *testing.T) {
	h := newHarness(t)
	h.s.Start("Hard")
	h.s.mu.Lock()
	h.s.board.Snake = []structs.Cell{{X: 32, Y: 32}, {X: 34, Y: 32}}
	h.s.mu.Unlock()

	h.clock.fire()
	if h.board().Status != structs.Over {
		t.Fatalf("status = %v, want over", h.board().Status)
	}
	if lastText(h.sink) != MsgOver {
		t.Fatalf("last text = %q", lastText(h.sink))
	}
	if h.s.sched.Armed() {
		t.Fatal("scheduler armed after game over")
	}
}

func TestWinEndsGame(t *testing.T) {
	h := newHarness(t)
	h.s.Start("Insane")
	var segs []structs.Cell
	for x := 50; x > 0; x-- {
		segs = append(segs, structs.Cell{X: x, Y: 10})
	}
	h.s.mu.Lock()
	h.s.board.Snake = segs
	h.s.board.Food = structs.Cell{X: 51, Y: 10}
	h.s.mu.Unlock()

	h.clock.fire()
	b := h.board()
	if b.Status != structs.Won || len(b.Snake) != 51 || b.Score != 1 {
		t.Fatalf("board = status %v len %d score %d", b.Status, len(b.Snake), b.Score)
	}
	if lastText(h.sink) != MsgWin {
		t.Fatalf("last text = %q", lastText(h.sink))
	}
	h.clock.fire()
	if len(h.board().Snake) != 51 {
		t.Fatal("tick after win mutated the board")
	}
}

func TestPushFailureKeepsPlaying(t *testing.T) {
	h := newHarness(t)
	h.s.Start("Hard")
	h.sink.SetFail(errors.New("device offline"))
	h.clock.fire()
	h.clock.fire()
	if got := h.board().Head(); got != (structs.Cell{X: 36, Y: 32}) {
		t.Fatalf("head = %v, want {36 32}", got)
	}
	if !h.s.sched.Armed() {
		t.Fatal("push failure stopped the scheduler")
	}
	if h.hub.frames != 3 {
		t.Fatalf("preview frames = %d, want 3", h.hub.frames)
	}
}

func TestConnect(t *testing.T) {
	h := newHarness(t)
	if err := h.s.Connect(context.Background(), "bad"); !errors.Is(err, display.ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
	if err := h.s.Connect(context.Background(), ""); !errors.Is(err, display.ErrEmptyAddress) {
		t.Fatalf("err = %v, want ErrEmptyAddress", err)
	}
	st := h.s.Snapshot()
	if !st.Connected || st.SinkAddr != "192.168.1.215" {
		t.Fatalf("failed connect replaced the sink: %+v", st)
	}
	if ok, seen := h.book.entries["bad"]; !seen || ok {
		t.Fatalf("book entry for bad = %v, %v", ok, seen)
	}
	if !h.book.entries["192.168.1.215"] {
		t.Fatal("successful connect not remembered")
	}
	if _, seen := h.book.entries[""]; seen {
		t.Fatal("empty address remembered")
	}
}

func TestToggleGrid(t *testing.T) {
	h := newHarness(t)
	if !h.s.ToggleGrid() {
		t.Fatal("grid should be on after first toggle")
	}
	if h.sink.Pushes() != 0 {
		t.Fatal("toggle without a game pushed a frame")
	}
	h.s.Start("Hard")
	if h.s.ToggleGrid() {
		t.Fatal("grid should be off after second toggle")
	}
	if h.sink.Pushes() != 2 {
		t.Fatalf("pushes = %d, want 2", h.sink.Pushes())
	}
}

func TestDifficultyAppliesOnStart(t *testing.T) {
	h := newHarness(t)
	h.s.SetDifficulty("Easy")
	h.s.Start("")
	if b := h.board(); b.BlockSize != 8 || b.Difficulty != "Easy" {
		t.Fatalf("board = %+v", b)
	}
	h.s.SetDifficulty("Nightmare")
	h.s.Start("")
	if b := h.board(); b.BlockSize != config.DefaultBlockSize {
		t.Fatalf("block size = %d, want default", b.BlockSize)
	}
}

func TestApplyConfig(t *testing.T) {
	h := newHarness(t)
	h.s.ApplyConfig(&config.AppConfig{Difficulty: "Medium", ShowGrid: true, TickMs: 50, PreviewScale: 2})
	st := h.s.Snapshot()
	if st.Difficulty != "Medium" || !st.ShowGrid {
		t.Fatalf("snapshot = %+v", st)
	}
	h.s.Start("")
	if h.clock.last != 50*time.Millisecond {
		t.Fatalf("armed with %v, want 50ms", h.clock.last)
	}
	img, ok := h.s.frames.GetFrameFromMemory(memimg.KeyPreview)
	if !ok || img.Bounds().Dx() != 2*structs.BoardSize {
		t.Fatalf("preview not scaled by 2")
	}
}

// storedFrame returns the pixels of the last published device frame.
func storedFrame(t *testing.T, s *Session) []byte {
	t.Helper()
	img, ok := s.frames.GetFrameFromMemory(memimg.KeyFrame)
	if !ok {
		t.Fatal("no frame stored")
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		t.Fatalf("stored frame is %T", img)
	}
	return append([]byte(nil), rgba.Pix...)
}

func TestWinMessageOverPreviousFrame(t *testing.T) {
	h := newHarness(t)
	h.s.Start("Insane")
	var segs []structs.Cell
	for x := 50; x > 0; x-- {
		segs = append(segs, structs.Cell{X: x, Y: 10})
	}
	h.s.mu.Lock()
	h.s.board.Snake = segs
	h.s.board.Food = structs.Cell{X: 51, Y: 10}
	f := h.s.renderLocked(h.s.scoreText())
	h.s.mu.Unlock()
	h.s.publish(f)
	before := storedFrame(t, h.s)

	h.clock.fire()
	if h.board().Status != structs.Won || lastText(h.sink) != MsgWin {
		t.Fatalf("status = %v text = %q", h.board().Status, lastText(h.sink))
	}
	if !bytes.Equal(storedFrame(t, h.s), before) {
		t.Fatal("win frame redrew the board")
	}
}

func TestGameOverMessageOverPreviousFrame(t *testing.T) {
	h := newHarness(t)
	h.s.Start("Hard")
	h.s.mu.Lock()
	h.s.board.Snake = []structs.Cell{{X: 32, Y: 32}, {X: 34, Y: 32}}
	f := h.s.renderLocked(h.s.scoreText())
	h.s.mu.Unlock()
	h.s.publish(f)
	before := storedFrame(t, h.s)

	h.clock.fire()
	if h.board().Status != structs.Over || lastText(h.sink) != MsgOver {
		t.Fatalf("status = %v text = %q", h.board().Status, lastText(h.sink))
	}
	if !bytes.Equal(storedFrame(t, h.s), before) {
		t.Fatal("game over frame redrew the board")
	}
}

func TestStaleFrameIsDropped(t *testing.T) {
	h := newHarness(t)
	h.s.Start("Hard")
	pushes := h.sink.Pushes()

	// tick 先渲染，暂停后渲染，但暂停那帧先拿到 pushMu
	h.s.mu.Lock()
	tickFrame := h.s.renderLocked("Score: 0")
	pauseFrame := h.s.messageLocked(MsgPaused)
	h.s.mu.Unlock()
	h.s.publish(pauseFrame)
	h.s.publish(tickFrame)

	if got := h.sink.Pushes() - pushes; got != 1 {
		t.Fatalf("pushed %d frames, want 1", got)
	}
	if lastText(h.sink) != MsgPaused {
		t.Fatalf("last text = %q, want %q", lastText(h.sink), MsgPaused)
	}
	if h.hub.frames != 2 {
		t.Fatalf("hub frames = %d, want 2", h.hub.frames)
	}
}

func TestApplyConfigRedrawsOnGridChange(t *testing.T) {
	h := newHarness(t)
	h.s.ApplyConfig(&config.AppConfig{ShowGrid: true})
	if h.sink.Pushes() != 0 {
		t.Fatal("grid change without a game pushed a frame")
	}
	h.s.Start("Hard")
	h.s.Pause()
	pushes := h.sink.Pushes()

	h.s.ApplyConfig(&config.AppConfig{ShowGrid: true})
	if h.sink.Pushes() != pushes {
		t.Fatal("unchanged grid setting pushed a frame")
	}
	before := storedFrame(t, h.s)
	h.s.ApplyConfig(&config.AppConfig{ShowGrid: false})
	if got := h.sink.Pushes() - pushes; got != 1 {
		t.Fatalf("pushed %d frames, want 1", got)
	}
	if lastText(h.sink) != MsgPaused {
		t.Fatalf("last text = %q, want %q", lastText(h.sink), MsgPaused)
	}
	if bytes.Equal(storedFrame(t, h.s), before) {
		t.Fatal("grid change did not redraw the board")
	}
}
