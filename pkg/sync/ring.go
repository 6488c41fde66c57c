package sync

import (
	"encoding/binary"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring is a consistent hash ring over stripe indices
type ring struct {
	points *treemap.Map

	// first caches the stripe at the lowest point, which catches any hash
	// past the last point. treemap.Map.Min() is O(log n).
	first int
}

// newRing returns a ring with replicas points per stripe
func newRing(stripes, replicas uint) *ring {
	points := treemap.NewWith(utils.Int64Comparator)

	point := make([]byte, 8)
	for stripe := 0; stripe < int(stripes); stripe++ {
		binary.LittleEndian.PutUint32(point[:4], uint32(stripe))
		for replica := 0; replica < int(replicas); replica++ {
			binary.LittleEndian.PutUint32(point[4:], uint32(replica))
			hash, _ := murmur3.Sum128(point)
			points.Put(int64(hash), stripe)
		}
	}

	r := &ring{points: points}
	if _, first := points.Min(); first != nil {
		r.first = first.(int)
	}
	return r
}

// stripe consistently hashes key onto a stripe
func (r *ring) stripe(key []byte) int {
	hash, _ := murmur3.Sum128(key)
	if _, stripe := r.points.Ceiling(int64(hash)); stripe != nil {
		return stripe.(int)
	}
	return r.first
}
