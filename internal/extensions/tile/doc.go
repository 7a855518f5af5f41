// Package tile tracks tile-chain lights and caches the pixels of every tile
// in the chain.
//
// A light is tracked once its product id reports tile support. Tracking
// fetches the chain layout and the pixels of all tiles; each service tick
// refreshes the pixels. Every device in a chain holds an 8×8 colour grid
// indexed row-major.
package tile
