// Package mint validates a user-supplied pattern and packs it into the
// argument shape of the contract's safeMint call.
//
// The contract takes the pattern as a line length and three packed state
// bytes. What those bytes mean is decided on-chain; this package only checks
// ranges and arity.
package mint

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// CellCount is the arity of the cells argument (uint8[3] on-chain).
const CellCount = 3

// MaxCell is the largest value a packed cell byte can hold.
const MaxCell = 255

// ErrInvalidPatternArgument is returned when a pattern cannot be encoded.
var ErrInvalidPatternArgument = errors.New("invalid pattern argument")

// Args is the validated argument tuple for safeMint(to, lineLength, cells).
type Args struct {
	LineLength uint64
	Cells      [CellCount]uint8
}

// Encode validates lineLength and cells and returns the mint arguments.
func Encode(lineLength int64, cells []int) (Args, error) {
	if lineLength < 0 {
		return Args{}, fmt.Errorf("%w: line length %d is negative", ErrInvalidPatternArgument, lineLength)
	}
	if len(cells) != CellCount {
		return Args{}, fmt.Errorf("%w: got %d cells, want %d", ErrInvalidPatternArgument, len(cells), CellCount)
	}

	args := Args{LineLength: uint64(lineLength)}
	for i, c := range cells {
		if c < 0 || c > MaxCell {
			return Args{}, fmt.Errorf("%w: cell %d value %d outside [0,%d]", ErrInvalidPatternArgument, i, c, MaxCell)
		}
		args.Cells[i] = uint8(c)
	}
	return args, nil
}

// ParseCells parses a comma-separated list such as "255, 8, 56".
// Only syntax is checked here; ranges are checked by Encode.
func ParseCells(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: no cells given", ErrInvalidPatternArgument)
	}

	parts := strings.Split(s, ",")
	cells := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: cell %q is not an integer", ErrInvalidPatternArgument, strings.TrimSpace(p))
		}
		cells = append(cells, v)
	}
	return cells, nil
}

// CellValues returns the cells as ints, in order.
func (a Args) CellValues() []int {
	out := make([]int, CellCount)
	for i, c := range a.Cells {
		out[i] = int(c)
	}
	return out
}

// ABIValues returns lineLength and cells typed for ABI packing after the
// recipient address: (uint256, uint8[3]).
func (a Args) ABIValues() []any {
	return []any{new(big.Int).SetUint64(a.LineLength), a.Cells}
}

func (a Args) String() string {
	return fmt.Sprintf("(%d,%v)", a.LineLength, a.CellValues())
}
