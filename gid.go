package tiled

// Bitmasks for tile orientation, stored in the top 3 bits of a tile ID.
const (
	FlippedHorizontally uint32 = 0x80000000
	FlippedVertically   uint32 = 0x40000000
	FlippedDiagonally   uint32 = 0x20000000

	flipMask = FlippedHorizontally | FlippedVertically | FlippedDiagonally
	gidMask  = ^flipMask
)

// Flip holds the flip flags of a tile ID.
type Flip struct {
	Horizontal bool `json:"h,omitempty"`
	Vertical   bool `json:"v,omitempty"`
	Diagonal   bool `json:"d,omitempty"`
}

// Any returns if any flag is set
func (f Flip) Any() bool {
	return f.Horizontal || f.Vertical || f.Diagonal
}

// bits returns the flags in their tile ID position
func (f Flip) bits() uint32 {
	var b uint32
	if f.Horizontal {
		b |= FlippedHorizontally
	}
	if f.Vertical {
		b |= FlippedVertically
	}
	if f.Diagonal {
		b |= FlippedDiagonally
	}
	return b
}

// Flags returns the flip flags of a raw tile ID
func Flags(id uint32) Flip {
	return Flip{
		Horizontal: id&FlippedHorizontally != 0,
		Vertical:   id&FlippedVertically != 0,
		Diagonal:   id&FlippedDiagonally != 0,
	}
}

// StripFlags returns the bare global ID of a raw tile ID
func StripFlags(id uint32) uint32 {
	return id & gidMask
}

// WithFlags sets the given flags on a bare global ID.
func WithFlags(gid uint32, f Flip) uint32 {
	return StripFlags(gid) | f.bits()
}
