package game

// =============================================================================
// FIELD GEOMETRY
// =============================================================================
//
// Player1 defends the goal plane at x=0, player2 the one at x=FieldWidth.
// All speeds are in field units per tick.

const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PaddleWidth  = 10.0
	PaddleHeight = 100.0
	PaddleInset  = 10.0 // gap between a goal plane and the paddle's back edge
	PaddleSpeed  = 6.0

	BallRadius = 5.0

	// MaxBounceVY is the vertical speed given to a ball that hits the very
	// edge of a paddle. A centre hit returns it flat.
	MaxBounceVY = 4.0

	ServeX  = FieldWidth / 2
	ServeY  = FieldHeight / 2
	ServeVX = 3.0
	ServeVY = 2.0

	// WinScore ends a match as soon as either side reaches it.
	WinScore = 10
)

// Paddle X extents, precomputed once.
const (
	paddle1Left  = PaddleInset
	paddle1Right = PaddleInset + PaddleWidth
	paddle2Right = FieldWidth - PaddleInset
	paddle2Left  = FieldWidth - PaddleInset - PaddleWidth
)

// Vec is a 2D point or velocity.
type Vec struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
