package display

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// Recorder is an in-memory Sink that remembers what was pushed.
type Recorder struct {
	mu     sync.Mutex
	fail   error
	texts  []string
	pushes int
	text   string
}

func (r *Recorder) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.text = ""
	return nil
}

func (r *Recorder) DrawImage(ctx context.Context, img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	return nil
}

func (r *Recorder) DrawText(ctx context.Context, text string, pos image.Point, c color.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.text = text
	return nil
}

func (r *Recorder) Push(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.pushes++
	r.texts = append(r.texts, r.text)
	return nil
}

// SetFail switches failure injection on or off.
func (r *Recorder) SetFail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// Pushes returns how many frames were pushed.
func (r *Recorder) Pushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushes
}

// Texts returns the overlay text of every pushed frame, oldest first.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}
