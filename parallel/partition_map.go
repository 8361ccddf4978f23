package parallel

import "sort"

// PartitionMap is the block distribution of the index range [0, n) over a
// number of buckets: contiguous, in increasing order, sizes differing by at
// most one with the larger buckets first. Initial mesh input and the vertex
// directory both use it.
type PartitionMap struct {
	off []int // Bucket b spans [off[b], off[b+1])
}

func NewPartitionMap(buckets, n int) *PartitionMap {
	var (
		counts = make([]int, buckets)
		each   = n / buckets
		extra  = n % buckets
	)
	for b := range counts {
		counts[b] = each
		if b < extra {
			counts[b]++
		}
	}
	return &PartitionMap{off: ExclusiveScan(counts)}
}

// GetBucket returns the bucket holding index k and its range, or bucket -1
// when k is out of range.
func (pm *PartitionMap) GetBucket(k int) (bucketNum, min, max int) {
	if k < 0 || k >= pm.off[len(pm.off)-1] {
		return -1, 0, 0
	}
	// First bucket ending past k; empty buckets end where they begin
	bucketNum = sort.SearchInts(pm.off[1:], k+1)
	min, max = pm.GetBucketRange(bucketNum)
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	return pm.off[bucketNum], pm.off[bucketNum+1]
}
