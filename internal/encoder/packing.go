// Package encoder implements the AVC444 dual-stream H.264 encoder (§4.5),
// the hardest component in this system: dual-view packing, auxiliary-stream
// omission, and the single-encoder DPB discipline that avoids the
// feedback-loop bug documented in spec §9.
package encoder

import "github.com/lamco-admin/wayland-rdp-sub008/internal/colorconv"

// View is one 4:2:0 plane set (main or auxiliary).
type View struct {
	Width, Height int // luma dimensions
	Y             []byte
	U, V          []byte // chroma at half resolution each dimension
	StrideY       int
	StrideC       int
}

// DualView holds the main and auxiliary 4:2:0 views packed from one
// YuvPlanes input, per MS-RDPEGFX §3.3.8.3.2 (§3 DualView, §4.5.1).
type DualView struct {
	Main *View
	Aux  *View
}

// PackDualView builds the main and auxiliary views from a 4:4:4 input.
//
// Main: Y copied unchanged; U/V sampled at (even col, even row) of U444/V444.
// Aux: Y is a synthetic luma built row-macroblock-wise — within each 16-row
// macroblock group, rows 0-7 copy successive ODD rows of U444, rows 8-15
// copy successive ODD rows of V444 (direct row copy, no interpolation, so
// static chroma yields bit-identical aux planes across frames — the
// invariant §4.5.1 calls out explicitly). Aux U/V sample at
// (odd col, even row) of U444/V444.
//
// Height must be even; odd widths/heights beyond the chroma plane's natural
// rounding are handled by clamping source indices, matching §8's "odd
// resolutions" boundary behavior (the caller guarantees macroblock alignment
// is the encoder's concern, not this function's, per §4.5.1's "no external
// padding is added").
func PackDualView(planes *colorconv.YuvPlanes) *DualView {
	w, h := planes.Width, planes.Height
	cw := (w + 1) / 2
	ch := (h + 1) / 2

	main := &View{Width: w, Height: h, StrideY: w, StrideC: cw}
	main.Y = make([]byte, w*h)
	copy(main.Y, planes.Y[:w*h])
	main.U = make([]byte, cw*ch)
	main.V = make([]byte, cw*ch)
	for row := 0; row < ch; row++ {
		srcRow := row * 2
		if srcRow >= h {
			srcRow = h - 1
		}
		for col := 0; col < cw; col++ {
			srcCol := col * 2
			if srcCol >= w {
				srcCol = w - 1
			}
			idx := srcRow*planes.StrideU + srcCol
			main.U[row*cw+col] = planes.U[idx]
			idxV := srcRow*planes.StrideV + srcCol
			main.V[row*cw+col] = planes.V[idxV]
		}
	}

	aux := &View{Width: w, Height: h, StrideY: w, StrideC: cw}
	aux.Y = make([]byte, w*h)
	packAuxLuma(planes, aux, w, h)
	aux.U = make([]byte, cw*ch)
	aux.V = make([]byte, cw*ch)
	for row := 0; row < ch; row++ {
		srcRow := row * 2
		if srcRow >= h {
			srcRow = h - 1
		}
		for col := 0; col < cw; col++ {
			srcCol := col*2 + 1
			if srcCol >= w {
				srcCol = w - 1
			}
			idx := srcRow*planes.StrideU + srcCol
			aux.U[row*cw+col] = planes.U[idx]
			idxV := srcRow*planes.StrideV + srcCol
			aux.V[row*cw+col] = planes.V[idxV]
		}
	}

	return &DualView{Main: main, Aux: aux}
}

// packAuxLuma implements the row-level macroblock layout from §4.5.1:
// within each 16-row group, aux rows [0,8) come from successive ODD rows of
// U444, aux rows [8,16) come from successive ODD rows of V444.
func packAuxLuma(planes *colorconv.YuvPlanes, aux *View, w, h int) {
	for row := 0; row < h; row++ {
		groupRow := row % 16
		var srcPlane []byte
		var srcStride int
		var oddIndex int // which odd row within the 8-row half
		if groupRow < 8 {
			srcPlane = planes.U
			srcStride = planes.StrideU
			oddIndex = groupRow
		} else {
			srcPlane = planes.V
			srcStride = planes.StrideV
			oddIndex = groupRow - 8
		}
		groupBase := (row / 16) * 16
		srcRow := groupBase + 2*oddIndex + 1
		if srcRow >= h {
			// Clamp for the final partial macroblock group on short frames;
			// the encoder's own macroblock alignment absorbs the remainder.
			srcRow = h - 1
			if srcRow%2 == 0 && srcRow > 0 {
				srcRow--
			}
		}
		dstBase := row * aux.StrideY
		srcBase := srcRow * srcStride
		copy(aux.Y[dstBase:dstBase+w], srcPlane[srcBase:srcBase+w])
	}
}
