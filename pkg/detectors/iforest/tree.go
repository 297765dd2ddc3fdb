package iforest

import (
	"math"
	"math/rand"
)

// Tree is a single isolation tree together with the subsample size it was
// grown from.
type Tree struct {
	Root          *Node
	SubsampleSize int
}

// Node is a node in an isolation tree. Internal nodes carry Feature and
// Threshold and both children; leaves carry Size and Depth.
type Node struct {
	// Split parameters (internal nodes)
	Feature   int
	Threshold float64

	Left  *Node
	Right *Node

	// Leaf information
	Size  int // training points that reached this leaf
	Depth int
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// buildTree draws sampleSize rows without replacement and grows a tree on them.
func buildTree(rng *rand.Rand, data [][]float64, sampleSize, heightLimit, nFeatures int) *Tree {
	indices := rng.Perm(len(data))[:sampleSize]
	sample := make([][]float64, sampleSize)
	for j, idx := range indices {
		sample[j] = data[idx]
	}

	lo := make([]float64, nFeatures)
	hi := make([]float64, nFeatures)
	splittable := make([]int, 0, nFeatures)

	return &Tree{
		Root:          buildNode(rng, sample, 0, heightLimit, lo, hi, splittable),
		SubsampleSize: sampleSize,
	}
}

// buildNode partitions sample in place. lo, hi and splittable are scratch
// buffers reused across the recursion.
func buildNode(rng *rand.Rand, sample [][]float64, depth, heightLimit int, lo, hi []float64, splittable []int) *Node {
	n := len(sample)
	if n <= 1 || depth >= heightLimit {
		return &Node{Size: n, Depth: depth}
	}

	copy(lo, sample[0])
	copy(hi, sample[0])
	for _, row := range sample[1:] {
		for j, v := range row {
			if v < lo[j] {
				lo[j] = v
			}
			if v > hi[j] {
				hi[j] = v
			}
		}
	}

	splittable = splittable[:0]
	for j := range lo {
		if hi[j] > lo[j] {
			splittable = append(splittable, j)
		}
	}
	// Every feature is constant: the points cannot be separated further.
	if len(splittable) == 0 {
		return &Node{Size: n, Depth: depth}
	}

	feature := splittable[rng.Intn(len(splittable))]
	threshold := splitValue(rng, lo[feature], hi[feature])

	i := 0
	for j, row := range sample {
		if row[feature] < threshold {
			sample[i], sample[j] = sample[j], sample[i]
			i++
		}
	}

	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildNode(rng, sample[:i], depth+1, heightLimit, lo, hi, splittable),
		Right:     buildNode(rng, sample[i:], depth+1, heightLimit, lo, hi, splittable),
	}
}

// splitValue draws a threshold in (lo, hi]. The lower bound is exclusive so
// the row holding lo always goes left and the row holding hi always goes
// right, leaving both children non-empty.
func splitValue(rng *rand.Rand, lo, hi float64) float64 {
	t := lo + rng.Float64()*(hi-lo)
	if t <= lo {
		t = math.Nextafter(lo, hi)
	}
	if t > hi {
		t = hi
	}
	return t
}

// pathLength returns the number of edges from n to the leaf reached by sample,
// plus the expected path length of the unbuilt subtree below that leaf.
func pathLength(sample []float64, n *Node) float64 {
	edges := 0
	for !n.IsLeaf() {
		if sample[n.Feature] < n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
		edges++
	}
	return float64(edges) + averagePathLength(float64(n.Size))
}
