package tray

// iconData is a 16x16 32-bit ICO with a blue selection-rectangle motif,
// generated inline so the binary stays self-contained.
var iconData = buildIcon()

func buildIcon() []byte {
	const dim = 16

	putU32 := func(b []byte, v uint32) {
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
		b[3] = byte(v >> 24)
	}

	// BITMAPINFOHEADER with height doubled for the AND mask.
	bih := make([]byte, 40)
	putU32(bih[0:], 40)
	putU32(bih[4:], dim)
	putU32(bih[8:], dim*2)
	bih[12] = 1  // planes
	bih[14] = 32 // bpp

	// Pixel rows bottom-up, BGRA. A two-pixel blue border, transparent
	// interior.
	pixels := make([]byte, dim*dim*4)
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			if x < 2 || x >= dim-2 || y < 2 || y >= dim-2 {
				off := (y*dim + x) * 4
				pixels[off+0] = 0xD4
				pixels[off+1] = 0x78
				pixels[off+2] = 0x00
				pixels[off+3] = 0xFF
			}
		}
	}
	mask := make([]byte, dim*4) // all-visible AND mask

	img := append(append(bih, pixels...), mask...)

	// ICONDIR + one ICONDIRENTRY.
	out := make([]byte, 6+16)
	out[2] = 1 // type icon
	out[4] = 1 // one image
	entry := out[6:]
	entry[0] = dim
	entry[1] = dim
	entry[4] = 1 // planes
	entry[6] = 32
	putU32(entry[8:], uint32(len(img)))
	putU32(entry[12:], uint32(len(out)))
	return append(out, img...)
}
