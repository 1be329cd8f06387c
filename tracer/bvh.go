package tracer

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// MaxLeafSize is the largest number of primitives stored in one leaf.
const MaxLeafSize = 4

// maxStack bounds traversal depth. Median splits keep the tree balanced, so
// 64 levels covers any scene that fits in memory.
const maxStack = 64

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

func emptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{Min: splat(inf), Max: splat(-inf)}
}

// Union returns the smallest box containing both.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: minVec(b.Min, o.Min), Max: maxVec(b.Max, o.Max)}
}

// Contains reports whether o lies entirely inside b.
func (b AABB) Contains(o AABB) bool {
	return o.Min.X >= b.Min.X && o.Min.Y >= b.Min.Y && o.Min.Z >= b.Min.Z &&
		o.Max.X <= b.Max.X && o.Max.Y <= b.Max.Y && o.Max.Z <= b.Max.Z
}

// longestAxis returns 0, 1 or 2.
func (b AABB) longestAxis() int {
	ext := b.Max.Sub(b.Min)
	axis := 0
	if ext.Y > ext.X {
		axis = 1
	}
	if ext.Z > max(ext.X, ext.Y) {
		axis = 2
	}
	return axis
}

// hit is the slab test. invDir holds 1/dir per axis; infinities from zero
// components work out because IEEE comparisons with them are well defined.
func (b AABB) hit(origin, invDir Vec3, tMax float64) bool {
	tmin, tmax := 0.0, tMax
	for axis := range 3 {
		inv := invDir.Axis(axis)
		o := origin.Axis(axis)
		t0 := (b.Min.Axis(axis) - o) * inv
		t1 := (b.Max.Axis(axis) - o) * inv
		if inv < 0 {
			t0, t1 = t1, t0
		}
		// NaN from 0*Inf leaves the bounds untouched.
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
		if tmax < tmin {
			return false
		}
	}
	return true
}

// bvhNode lives in a flat arena. Leaves have count > 0 and cover
// order[start:start+count]; internal nodes point at two children.
type bvhNode struct {
	bounds      AABB
	left, right int32
	start       int32
	count       int32
	axis        int8 // split axis of internal nodes
}

func (n *bvhNode) leaf() bool { return n.count > 0 }

// BVH is a binary bounding volume hierarchy over spheres. Node 0 is the
// root. It is immutable once built.
type BVH struct {
	nodes   []bvhNode
	order   []int
	spheres []Sphere
}

// BuildBVH bisects the spheres along the longest axis of each node's bounds
// at the median centroid until at most MaxLeafSize remain.
func BuildBVH(spheres []Sphere) *BVH {
	b := &BVH{
		order:   make([]int, len(spheres)),
		spheres: spheres,
	}
	for i := range b.order {
		b.order[i] = i
	}
	if len(spheres) > 0 {
		b.nodes = make([]bvhNode, 0, 2*len(spheres))
		b.build(0, len(spheres))
	}
	return b
}

func (b *BVH) build(start, end int) int32 {
	bounds := emptyAABB()
	for _, idx := range b.order[start:end] {
		bounds = bounds.Union(b.spheres[idx].Bounds())
	}

	self := int32(len(b.nodes))
	b.nodes = append(b.nodes, bvhNode{bounds: bounds})

	if end-start <= MaxLeafSize {
		b.nodes[self].start = int32(start)
		b.nodes[self].count = int32(end - start)
		return self
	}

	axis := bounds.longestAxis()
	slices.SortFunc(b.order[start:end], func(i, j int) int {
		ci, cj := b.spheres[i].Center.Axis(axis), b.spheres[j].Center.Axis(axis)
		switch {
		case ci < cj:
			return -1
		case ci > cj:
			return 1
		default:
			return i - j
		}
	})
	mid := start + (end-start)/2
	b.nodes[self].axis = int8(axis)

	left := b.build(start, mid)
	right := b.build(mid, end)
	b.nodes[self].left = left
	b.nodes[self].right = right
	return self
}

// Len returns the number of nodes.
func (b *BVH) Len() int { return len(b.nodes) }

// Bounds returns the root bounds, or an empty box for an empty hierarchy.
func (b *BVH) Bounds() AABB {
	if len(b.nodes) == 0 {
		return emptyAABB()
	}
	return b.nodes[0].bounds
}

// Intersect returns the nearest sphere hit closer than tMax. Traversal is
// iterative; the nearer child is visited first so later boxes are culled
// by the shrinking tMax.
func (b *BVH) Intersect(r Ray, tMax float64) (HitRecord, bool) {
	if len(b.nodes) == 0 {
		return HitRecord{}, false
	}

	invDir := Vec3{1 / r.Dir.X, 1 / r.Dir.Y, 1 / r.Dir.Z}
	best, bestT := -1, tMax

	var stack [maxStack]int32
	sp := 0
	stack[sp] = 0
	sp++

	for sp > 0 {
		sp--
		n := &b.nodes[stack[sp]]
		if !n.bounds.hit(r.Origin, invDir, bestT) {
			continue
		}

		if n.leaf() {
			for _, idx := range b.order[n.start : n.start+n.count] {
				if t, ok := b.spheres[idx].intersect(r); ok && t < bestT {
					best, bestT = idx, t
				}
			}
			continue
		}

		near, far := n.left, n.right
		if r.Dir.Axis(int(n.axis)) < 0 {
			near, far = far, near
		}
		stack[sp] = far
		sp++
		stack[sp] = near
		sp++
	}

	if best < 0 {
		return HitRecord{}, false
	}
	return sphereHit(b.spheres, best, r, bestT), true
}

// Validate checks the structural invariants: every internal node's bounds
// equal the union of its children's, every primitive's box is contained in
// each node on its path to the root, and the leaves cover every primitive
// exactly once.
func (b *BVH) Validate() error {
	if len(b.nodes) == 0 {
		if len(b.spheres) != 0 {
			return errors.New("bvh: no nodes for non-empty scene")
		}
		return nil
	}

	seen := make([]int, len(b.spheres))
	var walk func(idx int32, path []AABB) error
	walk = func(idx int32, path []AABB) error {
		if idx < 0 || int(idx) >= len(b.nodes) {
			return fmt.Errorf("bvh: node index %d out of range", idx)
		}
		if len(path) >= len(b.nodes) {
			return fmt.Errorf("bvh: node %d reached through a cycle", idx)
		}
		n := b.nodes[idx]
		path = append(path, n.bounds)

		if n.leaf() {
			if n.count > MaxLeafSize {
				return fmt.Errorf("bvh: leaf %d holds %d primitives", idx, n.count)
			}
			if n.start < 0 || int(n.start)+int(n.count) > len(b.order) {
				return fmt.Errorf("bvh: leaf %d primitive range out of bounds", idx)
			}
			for _, prim := range b.order[n.start : n.start+n.count] {
				if prim < 0 || prim >= len(b.spheres) {
					return fmt.Errorf("bvh: leaf %d references sphere %d out of range", idx, prim)
				}
				seen[prim]++
				box := b.spheres[prim].Bounds()
				for depth, anc := range path {
					if !anc.Contains(box) {
						return fmt.Errorf("bvh: sphere %d escapes node at depth %d", prim, depth)
					}
				}
			}
			return nil
		}

		for _, child := range [...]int32{n.left, n.right} {
			if child < 0 || int(child) >= len(b.nodes) {
				return fmt.Errorf("bvh: node %d has child index %d out of range", idx, child)
			}
		}
		want := b.nodes[n.left].bounds.Union(b.nodes[n.right].bounds)
		if want != n.bounds {
			return fmt.Errorf("bvh: node %d bounds are not the union of its children", idx)
		}
		if err := walk(n.left, path); err != nil {
			return err
		}
		return walk(n.right, path)
	}

	if err := walk(0, nil); err != nil {
		return err
	}
	for prim, n := range seen {
		if n != 1 {
			return fmt.Errorf("bvh: sphere %d appears in %d leaves", prim, n)
		}
	}
	return nil
}
