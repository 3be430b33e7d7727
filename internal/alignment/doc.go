// Package alignment estimates the transform between a drifting device
// frame and the local world frame.
//
// The transform is a translation (X0, Y0, Z0) plus a rotation Az about the
// vertical axis:
//
//	x_w = cos(Az)·x_d - sin(Az)·y_d + X0
//	y_w = sin(Az)·x_d + cos(Az)·y_d + Y0
//	z_w = z_d + Z0
//
// Parameters are found by a least-squares adjustment of condition
// equations A·(l + v) + B·dx = d over heterogeneous observations: point
// pairs, heading differences, points on planes and points on terrain.
// Each Adjust runs three stages. The first weighs every observation
// equally; the second and third down-weight observations whose normalized
// residuals under the previous stage are large, so that a single gross
// error cannot drag the solution.
package alignment
