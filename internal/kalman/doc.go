// Package kalman implements a dense linear Kalman filter on gonum matrices
// and the constant-acceleration motion model used to smooth device poses.
//
// A Filter is not safe for concurrent use; owners serialise access.
package kalman
