// Package gesture holds the fixed gesture vocabulary shared by the vision
// helpers, the simulation substrate and the UI.
//
// Each gesture is a pair of 5-bit finger patterns, left hand then right
// hand. Bits are ordered thumb, index, middle, ring, pinky and written as
// text left to right ("01000" is a raised index finger). The table is part
// of the public contract: Encode and Decode round-trip exactly for every
// entry.
package gesture
