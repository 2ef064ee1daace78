// Package display talks to the pixel-matrix device. Every call may fail
// with a transient I/O error; callers log and carry on.
package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fogleman/gg"
	"github.com/hoshinonyaruko/pixoo-snake/render"
	"github.com/hoshinonyaruko/pixoo-snake/structs"
)

var (
	// ErrConnect 设备连不上
	ErrConnect = errors.New("display unreachable")
	// ErrEmptyAddress is returned when no address was given.
	ErrEmptyAddress = errors.New("empty display address")
)

// Sink is a connected display. Draw calls build up a frame that Push sends.
type Sink interface {
	Clear(ctx context.Context) error
	DrawImage(ctx context.Context, img image.Image) error
	DrawText(ctx context.Context, text string, pos image.Point, c color.Color) error
	Push(ctx context.Context) error
}

// dialRetries 首次连接失败后最多再试几次
const dialRetries = 2

// dialBackOff starts at 100ms and doubles up to 2s.
func dialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.Multiplier = 2
	return b
}

// Dialer connects to the display at address.
type Dialer func(ctx context.Context, address string) (Sink, error)

// HTTPSink composes frames locally and posts them as PNG to the device.
type HTTPSink struct {
	base   string
	client *http.Client

	mu     sync.Mutex
	canvas *gg.Context
}

// Dial 探测设备地址，可达才返回 sink
func Dial(ctx context.Context, address string) (Sink, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrEmptyAddress
	}
	base := address
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")
	client := &http.Client{}

	ping := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
	err := backoff.Retry(ping, backoff.WithContext(backoff.WithMaxRetries(dialBackOff(), dialRetries), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, address, err)
	}

	s := &HTTPSink{base: base, client: client}
	s.canvas = newCanvas()
	return s, nil
}

func newCanvas() *gg.Context {
	dc := gg.NewContext(structs.BoardSize, structs.BoardSize)
	dc.SetColor(render.Background)
	dc.Clear()
	return dc
}

func (s *HTTPSink) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.canvas = newCanvas()
	s.mu.Unlock()
	return ctx.Err()
}

func (s *HTTPSink) DrawImage(ctx context.Context, img image.Image) error {
	s.mu.Lock()
	s.canvas.DrawImage(img, 0, 0)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *HTTPSink) DrawText(ctx context.Context, text string, pos image.Point, c color.Color) error {
	s.mu.Lock()
	s.canvas = gg.NewContextForRGBA(render.Compose(s.canvas.Image(), text, pos, c))
	s.mu.Unlock()
	return ctx.Err()
}

// Push 把当前画布以 PNG 发到设备
func (s *HTTPSink) Push(ctx context.Context) error {
	s.mu.Lock()
	data, err := render.EncodePNG(s.canvas.Image())
	s.mu.Unlock()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/frame", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/png")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("display push: unexpected status %s", resp.Status)
	}
	return nil
}

// Show runs the clear / draw image / draw text / push sequence on sink.
func Show(ctx context.Context, sink Sink, frame image.Image, text string) error {
	if err := sink.Clear(ctx); err != nil {
		return err
	}
	if err := sink.DrawImage(ctx, frame); err != nil {
		return err
	}
	if text != "" {
		if err := sink.DrawText(ctx, text, image.Point{}, render.TextColor); err != nil {
			return err
		}
	}
	return sink.Push(ctx)
}
