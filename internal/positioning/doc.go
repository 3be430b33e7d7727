// Package positioning ties the device tracker to the geographic frame.
//
// A Provider owns a constant-acceleration Kalman filter smoothing the
// device pose stream, an ordered store of alignment observations built
// from location fixes, compass readings, map clicks and point clouds, and
// a background worker that re-solves the device-to-world transform when
// the store changes. Filtered geographic locations are produced on demand
// by combining the current Kalman state with the last accepted transform.
//
// Lock order is Provider.mu before Provider.estMu. Origin listeners are
// always invoked with neither lock held.
package positioning
