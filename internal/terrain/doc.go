// Package terrain provides a regular digital terrain model grid anchored at
// a projected upper-left corner. The grid answers two queries: bilinear
// altitude at a geographic position, and the plane of the nearest surface
// facet to a point in the local frame.
//
// Heights are read-only after construction. A grid can be shared between
// goroutines; WithOrigin returns a new view instead of mutating.
package terrain
