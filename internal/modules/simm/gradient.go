package simm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/simm/pkg/ensemble"
)

// Gradient maps risk-factor coordinates to sensitivities for one evaluation time.
type Gradient map[Coordinate]ensemble.Vector

// Paths returns the common outcome count of the gradient. Scalars broadcast and
// count as 1; an empty gradient has 1 path.
func (g Gradient) Paths() (int, error) {
	paths := 1
	for _, c := range g.Coordinates() {
		v := g[c]
		if v.IsScalar() {
			continue
		}
		if paths != 1 && v.Len() != paths {
			return 0, fmt.Errorf("%w: %s has %d outcomes, expected %d", ErrEnsembleMismatch, c, v.Len(), paths)
		}
		paths = v.Len()
	}
	return paths, nil
}

// Coordinates returns the keys in canonical order.
func (g Gradient) Coordinates() []Coordinate {
	coords := make([]Coordinate, 0, len(g))
	for c := range g {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		return Compare(coords[i], coords[j]) < 0
	})
	return coords
}

// Filter returns the entries for which keep returns true.
func (g Gradient) Filter(keep func(Coordinate) bool) Gradient {
	out := make(Gradient)
	for c, v := range g {
		if keep(c) {
			out[c] = v
		}
	}
	return out
}

// Fingerprint returns a deterministic hash of coordinates and values, used to
// detect a changed gradient.
func (g Gradient) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	for _, c := range g.Coordinates() {
		h.Write([]byte(c.String()))
		h.Write([]byte{0})
		for _, x := range g[c].Values() {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
			h.Write(buf[:])
		}
		h.Write([]byte{0xff})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Shard splits every value into n outcome ranges. Scalars are shared by every
// shard. The returned shards hold the same coordinates as g.
func (g Gradient) Shard(n int) ([]Gradient, error) {
	paths, err := g.Paths()
	if err != nil {
		return nil, err
	}
	if n > paths {
		n = paths
	}
	if n < 1 {
		n = 1
	}
	shards := make([]Gradient, n)
	for i := range shards {
		shards[i] = make(Gradient, len(g))
	}
	for c, v := range g {
		for i, part := range v.Split(n) {
			shards[i][c] = part
		}
	}
	return shards, nil
}

type entry struct {
	coord Coordinate
	value ensemble.Vector
}

// entries returns the gradient as a canonically ordered slice.
func (g Gradient) entries() []entry {
	coords := g.Coordinates()
	out := make([]entry, len(coords))
	for i, c := range coords {
		out[i] = entry{coord: c, value: g[c]}
	}
	return out
}
