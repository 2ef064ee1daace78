package snake

import "github.com/hoshinonyaruko/pixoo-snake/structs"

// CellSet 是一组格子，用于碰撞检测和绘制
type CellSet map[structs.Cell]struct{}

// Add inserts c into the set.
func (s CellSet) Add(c structs.Cell) {
	s[c] = struct{}{}
}

// Has reports whether c is in the set.
func (s CellSet) Has(c structs.Cell) bool {
	_, ok := s[c]
	return ok
}

// Union adds every cell of other to s.
func (s CellSet) Union(other CellSet) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Subtract removes every cell of other from s.
func (s CellSet) Subtract(other CellSet) {
	for c := range other {
		delete(s, c)
	}
}

// Intersects reports whether the two sets share at least one cell.
func (s CellSet) Intersects(other CellSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for c := range small {
		if _, ok := large[c]; ok {
			return true
		}
	}
	return false
}

// Wrap 坐标对棋盘边长取模，负数也落在 [0, BoardSize) 内
func Wrap(v int) int {
	return (v%structs.BoardSize + structs.BoardSize) % structs.BoardSize
}

// Coverage returns the size×size block of cells whose top-left corner is
// anchor, wrapped around the board edges.
func Coverage(anchor structs.Cell, size int) CellSet {
	set := make(CellSet, size*size)
	for dx := 0; dx < size; dx++ {
		for dy := 0; dy < size; dy++ {
			set.Add(structs.Cell{X: Wrap(anchor.X + dx), Y: Wrap(anchor.Y + dy)})
		}
	}
	return set
}

// SnakeCoverage is the union of the coverage of every segment.
func SnakeCoverage(segments []structs.Cell, size int) CellSet {
	set := make(CellSet, len(segments)*size*size)
	for _, seg := range segments {
		set.Union(Coverage(seg, size))
	}
	return set
}
