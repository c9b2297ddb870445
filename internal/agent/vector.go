// File: internal/agent/vector.go
package agent

import "math"

// Vector2 represents a point or vector in the 2D world plane.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the vector sum of v and other.
func (v Vector2) Add(other Vector2) Vector2 {
	return Vector2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns the vector difference of v and other.
func (v Vector2) Sub(other Vector2) Vector2 {
	return Vector2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul returns the vector v scaled by the scalar factor.
func (v Vector2) Mul(scalar float64) Vector2 {
	return Vector2{X: v.X * scalar, Y: v.Y * scalar}
}

// Mag calculates the magnitude (length) of the vector.
func (v Vector2) Mag() float64 {
	// Use math.Hypot for numerical stability.
	return math.Hypot(v.X, v.Y)
}

// Normalize returns a unit vector in the same direction as v.
func (v Vector2) Normalize() Vector2 {
	mag := v.Mag()
	if mag < 1e-9 {
		return Vector2{}
	}
	return v.Mul(1.0 / mag)
}

// Limit truncates the magnitude of the vector if it exceeds max.
func (v Vector2) Limit(max float64) Vector2 {
	mag := v.Mag()
	if mag > max && mag > 0 {
		return v.Mul(max / mag)
	}
	return v
}

// Perp returns the counter-clockwise perpendicular, used for the
// post-transition orbital tangent.
func (v Vector2) Perp() Vector2 {
	return Vector2{X: -v.Y, Y: v.X}
}

// Clamp bounds both components to the [-half, half] square.
func (v Vector2) Clamp(half float64) Vector2 {
	return Vector2{
		X: math.Max(-half, math.Min(half, v.X)),
		Y: math.Max(-half, math.Min(half, v.Y)),
	}
}
