package tileid

import (
	"errors"
	"testing"
)

func TestKeysAreUnique(t *testing.T) {
	seen := make(map[uint64]OverscaledTileID)
	for wrap := -3; wrap <= 3; wrap++ {
		for z := 0; z <= 4; z++ {
			dim := uint32(1) << uint(z)
			for x := uint32(0); x < dim; x++ {
				for y := uint32(0); y < dim; y++ {
					for oz := z; oz <= z+2; oz++ {
						id := NewOverscaledTileID(oz, wrap, z, x, y)
						if prev, ok := seen[id.Key()]; ok {
							t.Fatalf("%s and %s share key %d", prev, id, id.Key())
						}
						seen[id.Key()] = id
					}
				}
			}
		}
	}
}

func TestKeyStaysBelowFloatPrecision(t *testing.T) {
	last := uint32(1)<<MaxPackedZoom - 1
	for _, wrap := range []int{-1000, 0, 1000} {
		id := NewOverscaledTileID(MaxPackedZoom+15, wrap, MaxPackedZoom, last, last)
		if id.Key() >= 1<<53 {
			t.Fatalf("key %d of %s exceeds 2^53", id.Key(), id)
		}
	}
}

func TestDeepZoomDropsWrap(t *testing.T) {
	a := CalculateKey(0, 23, 23, 5, 7)
	b := CalculateKey(1, 23, 23, 5, 7)
	if a != b {
		t.Fatalf("expected wrap to be dropped above z%d", MaxPackedZoom)
	}
	if CalculateKey(0, 10, 10, 5, 7) == CalculateKey(1, 10, 10, 5, 7) {
		t.Fatal("wrap must be kept at z10")
	}
}

func TestWrapRangePerZoom(t *testing.T) {
	tests := []struct {
		z      int
		lo, hi int
	}{
		{21, -2, 1},
		{20, -8, 7},
		{19, -32, 31},
	}

	for _, tt := range tests {
		seen := make(map[uint64]int)
		for wrap := tt.lo; wrap <= tt.hi; wrap++ {
			k := CalculateKey(wrap, tt.z, tt.z, 3, 4)
			if prev, ok := seen[k]; ok {
				t.Fatalf("z%d: wraps %d and %d share a key", tt.z, prev, wrap)
			}
			seen[k] = wrap
		}
		if CalculateKey(tt.hi+1, tt.z, tt.z, 3, 4) != CalculateKey(0, tt.z, tt.z, 3, 4) {
			t.Errorf("z%d: wrap %d should share the key of wrap 0", tt.z, tt.hi+1)
		}
		if CalculateKey(tt.lo-1, tt.z, tt.z, 3, 4) != CalculateKey(-1, tt.z, tt.z, 3, 4) {
			t.Errorf("z%d: wrap %d should share the key of wrap -1", tt.z, tt.lo-1)
		}
	}

	if CalculateKey(1, MaxPackedZoom, MaxPackedZoom, 3, 4) != CalculateKey(0, MaxPackedZoom, MaxPackedZoom, 3, 4) {
		t.Errorf("wrap should be dropped at z%d", MaxPackedZoom)
	}
}

func TestIsChildOf(t *testing.T) {
	child := NewOverscaledTileID(5, 0, 5, 10, 12)
	tests := []struct {
		name     string
		ancestor OverscaledTileID
		want     bool
	}{
		{"ancestor", NewOverscaledTileID(3, 0, 3, 2, 3), true},
		{"parent", NewOverscaledTileID(4, 0, 4, 5, 6), true},
		{"root", NewOverscaledTileID(0, 0, 0, 0, 0), true},
		{"other branch", NewOverscaledTileID(3, 0, 3, 1, 3), false},
		{"other world", NewOverscaledTileID(3, 1, 3, 2, 3), false},
		{"itself", child, false},
		{"deeper", NewOverscaledTileID(6, 0, 6, 20, 24), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := child.IsChildOf(tt.ancestor); got != tt.want {
				t.Fatalf("IsChildOf(%s) = %v, want %v", tt.ancestor, got, tt.want)
			}
		})
	}
}

func TestOverscaledParentAndChildren(t *testing.T) {
	id := NewOverscaledTileID(7, 0, 5, 3, 4)
	p, ok := id.Parent()
	if !ok || p.OverscaledZ != 6 || p.Canonical != id.Canonical {
		t.Fatalf("overscaled parent should keep the canonical tile, got %s", p)
	}

	kids := NewOverscaledTileID(5, 2, 5, 3, 4).Children(5)
	if len(kids) != 1 || kids[0].OverscaledZ != 6 || kids[0].Canonical.Z != 5 || kids[0].Wrap != 2 {
		t.Fatalf("expected a single overscaled child, got %v", kids)
	}

	kids = NewOverscaledTileID(2, 0, 2, 1, 1).Children(10)
	want := []CanonicalTileID{{3, 2, 2}, {3, 3, 2}, {3, 2, 3}, {3, 3, 3}}
	for i, k := range kids {
		if k.Canonical != want[i] {
			t.Fatalf("child %d: expected %s, got %s", i, want[i], k.Canonical)
		}
		if !k.IsChildOf(NewOverscaledTileID(2, 0, 2, 1, 1)) {
			t.Fatalf("%s should be a child of 2/1/1", k)
		}
	}

	if _, ok := NewOverscaledTileID(0, 0, 0, 0, 0).Parent(); ok {
		t.Fatal("root has no parent")
	}
}

func TestScaledKey(t *testing.T) {
	id := NewOverscaledTileID(6, -1, 6, 40, 21)
	for z := 0; z <= 9; z++ {
		if got, want := id.CalculateScaledKey(z, true), id.ScaledTo(z).Key(); got != want {
			t.Fatalf("z%d with wrap: %d != %d", z, got, want)
		}
		if got, want := id.CalculateScaledKey(z, false), id.ScaledTo(z).Wrapped().Key(); got != want {
			t.Fatalf("z%d without wrap: %d != %d", z, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := NewOverscaledTileID(20, 0, 4, 1, 1).Validate(); !errors.Is(err, ErrInvalidOverscale) {
		t.Fatalf("expected ErrInvalidOverscale, got %v", err)
	}
	if err := NewOverscaledTileID(2, 0, 3, 1, 1).Validate(); !errors.Is(err, ErrInvalidOverscale) {
		t.Fatalf("expected ErrInvalidOverscale, got %v", err)
	}
	if err := NewCanonicalTileID(2, 4, 0).Validate(); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	if err := NewOverscaledTileID(4, 3, 2, 3, 3).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLessOrdersByWrapThenZoom(t *testing.T) {
	a := NewOverscaledTileID(5, -1, 5, 9, 9)
	b := NewOverscaledTileID(2, 0, 2, 0, 0)
	c := NewOverscaledTileID(3, 0, 3, 0, 0)
	d := NewOverscaledTileID(3, 0, 3, 0, 1)
	if !a.Less(b) || !b.Less(c) || !c.Less(d) || d.Less(c) {
		t.Fatal("unexpected order")
	}
}

func TestQuadkeyRoundTrip(t *testing.T) {
	c := NewCanonicalTileID(3, 3, 5)
	if q := c.Quadkey(); q != "213" {
		t.Fatalf("expected quadkey 213, got %s", q)
	}
	back, err := FromQuadkey("213")
	if err != nil || back != c {
		t.Fatalf("expected %s, got %s (%v)", c, back, err)
	}
	if _, err := FromQuadkey("0194"); !errors.Is(err, ErrInvalidQuadkey) {
		t.Fatalf("expected ErrInvalidQuadkey, got %v", err)
	}
}

func TestNeighbor(t *testing.T) {
	id := NewOverscaledTileID(2, 0, 2, 0, 0)
	left := id.Neighbor(Left)
	if left.Canonical.X != 3 || left.Wrap != -1 {
		t.Fatalf("expected to cross into world -1, got %s", left)
	}
	if back := left.Neighbor(Right); !back.Equals(id) || back.Key() != id.Key() {
		t.Fatalf("expected to come back to %s, got %s", id, back)
	}
	if top := id.Neighbor(Top); top.Canonical.Y != 3 || top.Wrap != 0 {
		t.Fatalf("expected the pole to wrap vertically, got %s", top)
	}
}

func TestURLAndPointToTile(t *testing.T) {
	c := NewCanonicalTileID(4, 8, 5)
	if got := c.URL("https://tile.example/{z}/{x}/{y}.png"); got != "https://tile.example/4/8/5.png" {
		t.Fatalf("unexpected url %s", got)
	}
	if got := PointToTile(0, 0, 1); got != NewCanonicalTileID(1, 1, 1) {
		t.Fatalf("expected 1/1/1 at the origin, got %s", got)
	}
	if got := PointToTile(-180, 85, 3); got != NewCanonicalTileID(3, 0, 0) {
		t.Fatalf("expected 3/0/0 in the corner, got %s", got)
	}
}
