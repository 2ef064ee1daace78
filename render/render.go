// 把棋盘状态画成像素屏大小的图片
package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/hoshinonyaruko/pixoo-snake/snake"
	"github.com/hoshinonyaruko/pixoo-snake/structs"
	"golang.org/x/image/font/basicfont"
)

// GridSpacing 网格线间距（像素）
const GridSpacing = 8

var (
	Background = color.RGBA{0, 0, 0, 255}
	FoodColor  = color.RGBA{255, 0, 0, 255}
	SnakeColor = color.RGBA{0, 255, 0, 255}
	GridColor  = color.RGBA{100, 100, 100, 255}
	TextColor  = color.RGBA{255, 255, 255, 255}
)

// Render draws the board into a BoardSize×BoardSize pixel buffer.
func Render(board *structs.Board, showGrid bool) *image.RGBA {
	dc := gg.NewContext(structs.BoardSize, structs.BoardSize)
	dc.SetColor(Background)
	dc.Clear()

	if board != nil && len(board.Snake) > 0 {
		dc.SetColor(FoodColor)
		for c := range snake.Coverage(board.Food, board.BlockSize) {
			dc.SetPixel(c.X, c.Y)
		}
		dc.SetColor(SnakeColor)
		for _, seg := range board.Snake {
			for c := range snake.Coverage(seg, board.BlockSize) {
				dc.SetPixel(c.X, c.Y)
			}
		}
	}

	if showGrid {
		renderGrid(dc, structs.BoardSize, structs.BoardSize)
	}
	return toRGBA(dc.Image())
}

// renderGrid 画网格，线落在像素中心保证 1 像素宽
func renderGrid(dc *gg.Context, width, height int) {
	dc.SetColor(GridColor)
	dc.SetLineWidth(1)
	for x := 0; x < width; x += GridSpacing {
		dc.DrawLine(float64(x)+0.5, 0, float64(x)+0.5, float64(height))
		dc.Stroke()
	}
	for y := 0; y < height; y += GridSpacing {
		dc.DrawLine(0, float64(y)+0.5, float64(width), float64(y)+0.5)
		dc.Stroke()
	}
}

// Compose returns a copy of frame with text drawn from pos. Words that do
// not fit the frame width wrap onto the next line.
func Compose(frame image.Image, text string, pos image.Point, c color.Color) *image.RGBA {
	b := frame.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(frame, 0, 0)
	if text != "" {
		dc.SetFontFace(basicfont.Face7x13)
		dc.SetColor(c)
		// 64 像素宽放不下 "Game Stopped"，按词换行
		width := float64(b.Dx() - pos.X)
		dc.DrawStringWrapped(text, float64(pos.X), float64(pos.Y), 0, 0, width, 1, gg.AlignLeft)
	}
	return toRGBA(dc.Image())
}

// Blank is an empty frame, used before the first game has been drawn.
func Blank() *image.RGBA {
	return Render(nil, false)
}

// Preview 最近邻放大，保持像素块清晰
func Preview(frame image.Image, scale int) *image.NRGBA {
	if scale < 1 {
		scale = 1
	}
	b := frame.Bounds()
	return imaging.Resize(frame, b.Dx()*scale, b.Dy()*scale, imaging.NearestNeighbor)
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba
}
