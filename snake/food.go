package snake

import (
	"errors"

	"github.com/hoshinonyaruko/pixoo-snake/structs"
)

// ErrBoardFull 没有任何空位可以放食物
var ErrBoardFull = errors.New("no free cell left for food")

// MaxFoodAttempts bounds the random sampling before falling back to a scan.
const MaxFoodAttempts = 256

// PlaceFood picks a block-aligned anchor whose coverage does not touch the
// snake. Random sampling is tried first, then a row-major scan of every
// aligned anchor.
func PlaceFood(segments []structs.Cell, size int, rng Rand) (structs.Cell, error) {
	if size <= 0 {
		size = 1
	}
	snakeCov := SnakeCoverage(segments, size)
	// 对齐后每个轴上可选的锚点数
	slots := (structs.BoardSize + size - 1) / size

	for i := 0; i < MaxFoodAttempts; i++ {
		food := structs.Cell{X: rng.Intn(slots) * size, Y: rng.Intn(slots) * size}
		if !Coverage(food, size).Intersects(snakeCov) {
			return food, nil
		}
	}

	// 随机失败，顺序扫描兜底
	for y := 0; y < slots; y++ {
		for x := 0; x < slots; x++ {
			food := structs.Cell{X: x * size, Y: y * size}
			if !Coverage(food, size).Intersects(snakeCov) {
				return food, nil
			}
		}
	}
	return structs.Cell{}, ErrBoardFull
}
