package structs

// BoardSize 是像素屏的边长，坐标都对它取模。
const BoardSize = 64

// Cell 描述棋盘上的一个格子坐标。
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Direction 是单位位移 (dx, dy)，dx*dy 恒为 0。
type Direction struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

var (
	None  = Direction{0, 0}
	Up    = Direction{0, -1}
	Down  = Direction{0, 1}
	Left  = Direction{-1, 0}
	Right = Direction{1, 0}
)

// ParseDirection maps "up", "down", "left" and "right" to a Direction.
func ParseDirection(name string) (Direction, bool) {
	switch name {
	case "up":
		return Up, true
	case "down":
		return Down, true
	case "left":
		return Left, true
	case "right":
		return Right, true
	default:
		return None, false
	}
}

// Status 游戏状态
type Status int

const (
	Idle Status = iota
	Running
	Paused
	Over
	Won
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Over:
		return "over"
	case Won:
		return "won"
	default:
		return "unknown"
	}
}

// MarshalText lets the status show up by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Board 描述一局游戏的全部状态，每次开局重置。
type Board struct {
	Snake      []Cell    `json:"snake"`      // 蛇身锚点，头在前
	Direction  Direction `json:"direction"`  // 当前方向
	Food       Cell      `json:"food"`       // 食物锚点
	Score      int       `json:"score"`      // 得分
	BlockSize  int       `json:"block_size"` // 每个方块的边长
	Difficulty string    `json:"difficulty"` // 开局时的难度名
	Status     Status    `json:"status"`     // 游戏状态
}

// Head returns the first segment of the snake.
func (b *Board) Head() Cell {
	return b.Snake[0]
}

// Clone returns a deep copy that is safe to hand to other goroutines.
func (b *Board) Clone() Board {
	c := *b
	c.Snake = append([]Cell(nil), b.Snake...)
	return c
}

// Device 记录一个连接过的像素屏地址
type Device struct {
	Address   string `json:"address"`
	LastSeen  int64  `json:"last_seen"` // UnixNano
	Connected bool   `json:"connected"` // 最近一次连接是否成功
}
