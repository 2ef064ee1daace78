package snake

import (
	"github.com/hoshinonyaruko/pixoo-snake/config"
	"github.com/hoshinonyaruko/pixoo-snake/structs"
)

// Rand is the subset of *rand.Rand used for food placement.
type Rand interface {
	Intn(n int) int
}

// Event 驱动状态机的事件
type Event int

const (
	EventStart Event = iota
	EventPause
	EventResume
	EventStop
	EventCollide
	EventWin
)

// Reset 开新局：按难度设置方块大小，蛇头放在中心，方向向右，放置食物
func Reset(difficulty string, rng Rand) (*structs.Board, error) {
	center := structs.BoardSize / 2
	board := &structs.Board{
		Snake:      []structs.Cell{{X: center, Y: center}},
		Direction:  structs.Right,
		BlockSize:  config.BlockSizeFor(difficulty),
		Difficulty: difficulty,
		Status:     structs.Idle,
	}
	food, err := PlaceFood(board.Snake, board.BlockSize, rng)
	if err != nil {
		return nil, err
	}
	board.Food = food
	ApplyStatus(board, EventStart)
	return board, nil
}

// SetDirection changes the heading only while running and only to a
// perpendicular direction. Everything else is dropped silently.
func SetDirection(board *structs.Board, requested structs.Direction) bool {
	if board.Status != structs.Running || requested == structs.None {
		return false
	}
	cur := board.Direction
	if cur.DX*requested.DX+cur.DY*requested.DY != 0 {
		return false
	}
	board.Direction = requested
	return true
}

// ApplyStatus 按状态机迁移，非法迁移返回 false 且状态不变
func ApplyStatus(board *structs.Board, event Event) bool {
	next, ok := transition(board.Status, event)
	if !ok {
		return false
	}
	board.Status = next
	return true
}

func transition(from structs.Status, event Event) (structs.Status, bool) {
	switch event {
	case EventStart:
		return structs.Running, true
	case EventPause:
		if from == structs.Running {
			return structs.Paused, true
		}
	case EventResume:
		if from == structs.Paused {
			return structs.Running, true
		}
	case EventStop:
		if from == structs.Running || from == structs.Paused {
			return structs.Over, true
		}
	case EventCollide:
		if from == structs.Running {
			return structs.Over, true
		}
	case EventWin:
		if from == structs.Running {
			return structs.Won, true
		}
	}
	return from, false
}
