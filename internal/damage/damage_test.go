package damage

import "testing"

func solidFrame(w, h int, val byte) *Frame {
	data := make([]byte, w*h*4)
	for i := range data {
		data[i] = val
	}
	return &Frame{Width: w, Height: h, Stride: w * 4, BytesPerPixel: 4, Data: data}
}

func TestFirstFrameIsAllDirty(t *testing.T) {
	tr := NewTracker(64)
	f := solidFrame(128, 128, 10)
	m := tr.Compare(f, false)
	if m.DamageFraction != 1.0 {
		t.Fatalf("first frame damage fraction = %v, want 1.0", m.DamageFraction)
	}
	for _, d := range m.Dirty {
		if !d {
			t.Fatal("first frame must mark every tile dirty")
		}
	}
}

func TestIdenticalSecondFrameIsClean(t *testing.T) {
	tr := NewTracker(64)
	f1 := solidFrame(128, 128, 5)
	tr.Compare(f1, false)

	f2 := solidFrame(128, 128, 5)
	m := tr.Compare(f2, false)
	if m.DamageFraction != 0 {
		t.Fatalf("identical frame damage fraction = %v, want 0", m.DamageFraction)
	}
}

func TestLocalizedChangeMarksOnlyAffectedTile(t *testing.T) {
	tr := NewTracker(64)
	f1 := solidFrame(128, 128, 5)
	tr.Compare(f1, false)

	f2 := solidFrame(128, 128, 5)
	// Dirty a single pixel inside tile (1,1).
	off := 65*f2.Stride + 65*4
	f2.Data[off] = 200

	m := tr.Compare(f2, false)
	if !m.IsDirty(1, 1) {
		t.Fatal("expected tile (1,1) to be dirty")
	}
	if m.IsDirty(0, 0) {
		t.Fatal("tile (0,0) must remain clean")
	}
	want := 1.0 / 4.0
	if m.DamageFraction != want {
		t.Fatalf("damage fraction = %v, want %v", m.DamageFraction, want)
	}
}

func TestResolutionChangeForcesAllDirty(t *testing.T) {
	tr := NewTracker(64)
	tr.Compare(solidFrame(128, 128, 1), false)
	m := tr.Compare(solidFrame(256, 128, 1), false)
	if m.DamageFraction != 1.0 {
		t.Fatal("resolution change must force all-dirty")
	}
}

func TestForceAllDirty(t *testing.T) {
	tr := NewTracker(64)
	tr.Compare(solidFrame(128, 128, 1), false)
	m := tr.Compare(solidFrame(128, 128, 1), true)
	if m.DamageFraction != 1.0 {
		t.Fatal("forced keyframe request must mark all-dirty even with no pixel changes")
	}
}

func TestMergeRegionsSoundness(t *testing.T) {
	m := &Map{
		TileSize:  64,
		TilesWide: 4,
		TilesHigh: 4,
		Dirty: []bool{
			true, true, false, false,
			true, true, false, false,
			false, false, false, false,
			false, false, true, false,
		},
	}
	rects := MergeRegions(m)

	covered := make(map[[2]int]bool)
	for _, r := range rects {
		for y := r.Y; y < r.Y+r.Height; y += m.TileSize {
			for x := r.X; x < r.X+r.Width; x += m.TileSize {
				covered[[2]int{x / m.TileSize, y / m.TileSize}] = true
			}
		}
	}

	for ty := 0; ty < m.TilesHigh; ty++ {
		for tx := 0; tx < m.TilesWide; tx++ {
			dirty := m.IsDirty(tx, ty)
			isCovered := covered[[2]int{tx, ty}]
			if dirty && !isCovered {
				t.Fatalf("dirty tile (%d,%d) not covered by any region", tx, ty)
			}
			if !dirty && isCovered {
				t.Fatalf("clean tile (%d,%d) incorrectly covered by a region", tx, ty)
			}
		}
	}
}
