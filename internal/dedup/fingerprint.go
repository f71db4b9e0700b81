package dedup

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/rickgao/orderbook-relay/internal/model"
)

// levelSize is the encoded size of one (type, price, volume) triple.
const levelSize = 4 + 8 + 8

// Fingerprint identifies the content of one snapshot.
type Fingerprint struct {
	sum   uint64
	n     int
	valid bool
}

// None is the "no fingerprint" sentinel.
var None = Fingerprint{}

// Compute returns the fingerprint of an ordered level sequence.
// Only type, price and volume take part; VolumeDbl does not.
func Compute(levels []model.BookLevel) Fingerprint {
	if len(levels) == 0 {
		return None
	}

	d := xxhash.New()
	var buf [levelSize]byte
	for _, l := range levels {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(l.Type))
		binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(normalizeZero(l.Price)))
		binary.LittleEndian.PutUint64(buf[12:20], uint64(l.Volume))
		d.Write(buf[:])
	}

	return Fingerprint{
		sum:   d.Sum64(),
		n:     len(levels),
		valid: true,
	}
}

// Equal reports whether a and b identify the same snapshot content.
// The sentinel is never equal to anything.
func Equal(a, b Fingerprint) bool {
	if !a.valid || !b.valid {
		return false
	}
	return a.sum == b.sum && a.n == b.n
}

// Valid reports whether f was computed from a non-empty snapshot.
func (f Fingerprint) Valid() bool {
	return f.valid
}

// Levels returns the number of levels the fingerprint covers.
func (f Fingerprint) Levels() int {
	return f.n
}

// String renders the fingerprint for logs.
func (f Fingerprint) String() string {
	if !f.valid {
		return "none"
	}
	return fmt.Sprintf("%016x/%d", f.sum, f.n)
}

// normalizeZero folds -0 into +0 so both compare as the same price.
func normalizeZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}
