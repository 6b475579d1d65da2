package encoder

import (
	"testing"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/colorconv"
)

// buildTestPlanes constructs a YUV444 frame with U[i,j]=i^j, V[i,j]=(i+j)%256
// per §8 scenario 3, and an arbitrary but fixed Y plane.
func buildTestPlanes(w, h int) *colorconv.YuvPlanes {
	p := colorconv.NewYuvPlanes(w, h)
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			idx := i*w + j
			p.Y[idx] = byte((i * 7 + j) % 256)
			p.U[idx] = byte(i ^ j)
			p.V[idx] = byte((i + j) % 256)
		}
	}
	return p
}

func TestPackDualViewMainMatchesInput(t *testing.T) {
	w, h := 32, 32
	planes := buildTestPlanes(w, h)
	dv := PackDualView(planes)

	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			if dv.Main.Y[i*w+j] != planes.Y[i*planes.StrideY+j] {
				t.Fatalf("main Y[%d,%d] mismatch", i, j)
			}
		}
	}

	cw, ch := (w+1)/2, (h+1)/2
	for i := 0; i < ch; i++ {
		for j := 0; j < cw; j++ {
			wantU := planes.U[(2*i)*planes.StrideU+2*j]
			wantV := planes.V[(2*i)*planes.StrideV+2*j]
			if dv.Main.U[i*cw+j] != wantU {
				t.Fatalf("main U[%d,%d] = %d, want %d", i, j, dv.Main.U[i*cw+j], wantU)
			}
			if dv.Main.V[i*cw+j] != wantV {
				t.Fatalf("main V[%d,%d] = %d, want %d", i, j, dv.Main.V[i*cw+j], wantV)
			}
		}
	}
}

// TestPackDualViewAuxRowMacroblockLayout verifies §8 scenario 3: within each
// 16-row macroblock group, aux luma rows [0,8) copy successive odd rows of
// U444 and rows [8,16) copy successive odd rows of V444, relative to the
// group's own base row.
func TestPackDualViewAuxRowMacroblockLayout(t *testing.T) {
	w, h := 32, 32
	planes := buildTestPlanes(w, h)
	dv := PackDualView(planes)

	for row := 0; row < h; row++ {
		groupBase := (row / 16) * 16
		localRow := row % 16
		var want []byte
		if localRow < 8 {
			srcRow := groupBase + 2*localRow + 1
			want = planes.U[srcRow*planes.StrideU : srcRow*planes.StrideU+w]
		} else {
			srcRow := groupBase + 2*(localRow-8) + 1
			want = planes.V[srcRow*planes.StrideV : srcRow*planes.StrideV+w]
		}
		got := dv.Aux.Y[row*dv.Aux.StrideY : row*dv.Aux.StrideY+w]
		for c := 0; c < w; c++ {
			if got[c] != want[c] {
				t.Fatalf("aux row %d byte %d = %d, want %d", row, c, got[c], want[c])
			}
		}
	}
}

func TestPackDualViewAuxChromaSampling(t *testing.T) {
	w, h := 16, 16
	planes := buildTestPlanes(w, h)
	dv := PackDualView(planes)

	cw, ch := (w+1)/2, (h+1)/2
	for i := 0; i < ch; i++ {
		for j := 0; j < cw; j++ {
			srcCol := 2*j + 1
			if srcCol >= w {
				srcCol = w - 1
			}
			wantU := planes.U[(2*i)*planes.StrideU+srcCol]
			wantV := planes.V[(2*i)*planes.StrideV+srcCol]
			if dv.Aux.U[i*cw+j] != wantU {
				t.Fatalf("aux U[%d,%d] = %d, want %d", i, j, dv.Aux.U[i*cw+j], wantU)
			}
			if dv.Aux.V[i*cw+j] != wantV {
				t.Fatalf("aux V[%d,%d] = %d, want %d", i, j, dv.Aux.V[i*cw+j], wantV)
			}
		}
	}
}

// TestAuxPlaneTemporalDeterminism is the §8 "AVC444 temporal" invariant: for
// two consecutive frames with identical chroma planes, the packed auxiliary
// plane bytes are bit-identical (even if luma differs, since aux Y is
// derived purely from chroma).
func TestAuxPlaneTemporalDeterminism(t *testing.T) {
	w, h := 32, 32
	p1 := buildTestPlanes(w, h)
	p2 := buildTestPlanes(w, h)
	// Perturb only luma between the two frames.
	for i := range p2.Y {
		p2.Y[i] ^= 0xFF
	}

	dv1 := PackDualView(p1)
	dv2 := PackDualView(p2)

	if len(dv1.Aux.Y) != len(dv2.Aux.Y) {
		t.Fatal("aux plane length mismatch")
	}
	for i := range dv1.Aux.Y {
		if dv1.Aux.Y[i] != dv2.Aux.Y[i] {
			t.Fatalf("aux Y differs at %d despite identical chroma: %d != %d", i, dv1.Aux.Y[i], dv2.Aux.Y[i])
		}
	}
	for i := range dv1.Aux.U {
		if dv1.Aux.U[i] != dv2.Aux.U[i] || dv1.Aux.V[i] != dv2.Aux.V[i] {
			t.Fatalf("aux chroma differs at %d despite identical chroma planes", i)
		}
	}
}
