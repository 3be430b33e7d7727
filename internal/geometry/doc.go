// Package geometry holds small 3D helpers shared by the terrain grid and
// the alignment estimator: closest point on a triangle, plane equations and
// bilinear interpolation. Vectors are gonum r3 values.
package geometry
