package snake

import (
	"errors"

	"github.com/hoshinonyaruko/pixoo-snake/structs"
)

// WinLength 吃到食物后蛇长超过这个值即获胜
const WinLength = 50

// Outcome 一次 tick 的结果
type Outcome struct {
	Moved    bool // 方向为零向量时不移动
	Ate      bool
	Collided bool
	Won      bool
}

// Finished reports whether the tick ended the game.
func (o Outcome) Finished() bool {
	return o.Collided || o.Won
}

// Step advances the board by one tick. It does nothing unless the board is
// running.
func Step(board *structs.Board, rng Rand) Outcome {
	var out Outcome
	if board.Status != structs.Running || len(board.Snake) == 0 {
		return out
	}
	dir := board.Direction
	if dir == structs.None {
		return out
	}
	size := board.BlockSize
	oldHead := board.Head()

	newHead := structs.Cell{
		X: Wrap(oldHead.X + dir.DX*size),
		Y: Wrap(oldHead.Y + dir.DY*size),
	}
	headCov := Coverage(newHead, size)

	// 排除旧蛇头自身的覆盖，否则蛇会撞到正在离开的格子
	bodyCov := SnakeCoverage(board.Snake, size)
	bodyCov.Subtract(Coverage(oldHead, size))
	if headCov.Intersects(bodyCov) {
		ApplyStatus(board, EventCollide)
		out.Collided = true
		return out
	}

	out.Moved = true
	board.Snake = append([]structs.Cell{newHead}, board.Snake...)

	if !headCov.Intersects(Coverage(board.Food, size)) {
		board.Snake = board.Snake[:len(board.Snake)-1]
		return out
	}

	out.Ate = true
	board.Score++
	food, err := PlaceFood(board.Snake, size, rng)
	if errors.Is(err, ErrBoardFull) {
		// 棋盘已满，视为获胜
		ApplyStatus(board, EventWin)
		out.Won = true
		return out
	}
	board.Food = food
	if len(board.Snake) > WinLength {
		ApplyStatus(board, EventWin)
		out.Won = true
	}
	return out
}
