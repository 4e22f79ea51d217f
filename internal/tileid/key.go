package tileid

// MaxPackedZoom is the deepest zoom whose (x, y) grid is packed without loss.
// The wrap only gets the 2*(22-z) bits the grid leaves free, zig-zag encoded,
// so world copies are distinct for -2^(43-2z) <= wrap < 2^(43-2z): z21 keeps
// wraps -2..1, z20 keeps -8..7. Outside that range keys repeat, at z21 wrap 2
// shares the key of wrap 0.
// At z22 and above the wrap is dropped and deeper grids are folded into 22
// bits per axis. Colliding keys are accepted, not detected.
const MaxPackedZoom = 22

// wrapBits is the number of key bits left for the wrap at zoom z.
func wrapBits(z int) uint {
	if z >= MaxPackedZoom {
		return 0
	}
	return uint(2 * (MaxPackedZoom - z))
}

// CalculateKey packs (wrap, overscaledZ, z, x, y) into an integer that stays
// below 2^53. Layout, low bits first: 4 bits of overscaledZ-z, 5 bits of z,
// then the y*dim+x grid index with the zig-zag encoded wrap folded into the
// bits the grid leaves unused when z < 22.
func CalculateKey(wrap, overscaledZ, z int, x, y uint32) uint64 {
	zc := z
	if zc > MaxPackedZoom {
		zc = MaxPackedZoom
	}
	dim := uint64(1) << uint(zc)
	xy := dim*(uint64(y)%dim) + uint64(x)%dim

	if bits := wrapBits(z); wrap != 0 && bits > 0 {
		xy += dim * dim * (zigzag(wrap) % (uint64(1) << bits))
	}

	return (xy*32+uint64(z))*16 + uint64(overscaledZ-z)
}

func zigzag(wrap int) uint64 {
	if wrap < 0 {
		return uint64(-2*wrap - 1)
	}
	return uint64(2 * wrap)
}
