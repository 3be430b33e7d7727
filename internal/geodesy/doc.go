// Package geodesy converts between geodetic coordinates, a transverse
// Mercator grid and a local tangent-plane frame anchored at an Origin.
//
// All functions are pure and operate on a fixed ellipsoid; they never
// return errors. Geoid and magnetic declination models are consumed through
// small interfaces so the platform can supply real data.
package geodesy
