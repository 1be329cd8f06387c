package tracer

import "math"

// Epsilon offsets secondary ray origins off surfaces and rejects hits that
// are too close to count.
const Epsilon = 0.001

// MaterialKind selects how a surface scatters light.
type MaterialKind int

const (
	Diffuse MaterialKind = iota
	Metal
	Glass
)

func (m MaterialKind) String() string {
	switch m {
	case Metal:
		return "metal"
	case Glass:
		return "glass"
	default:
		return "diffuse"
	}
}

// Sphere is a scene primitive. Roughness is 0 for a perfect surface and 1
// for fully diffuse; IOR only matters for glass.
type Sphere struct {
	Center    Vec3
	Radius    float64
	Color     Vec3
	IsLight   bool
	Emission  float64
	Material  MaterialKind
	Roughness float64
	IOR       float64
}

// Bounds returns the sphere's axis-aligned bounding box.
func (s Sphere) Bounds() AABB {
	r := splat(s.Radius)
	return AABB{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

// intersect returns the nearest distance along r greater than Epsilon.
// r.Dir must be normalized.
func (s Sphere) intersect(r Ray) (float64, bool) {
	oc := r.Origin.Sub(s.Center)
	b := oc.Dot(r.Dir)
	c := oc.Dot(oc) - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}

	sq := math.Sqrt(disc)
	t := -b - sq
	if t <= Epsilon {
		t = -b + sq
	}
	if t <= Epsilon {
		return 0, false
	}
	return t, true
}

// Plane is an infinite diffuse plane through Position facing Normal.
type Plane struct {
	Position Vec3
	Normal   Vec3
	Color    Vec3
}

func (p Plane) intersect(r Ray) (float64, bool) {
	denom := p.Normal.Dot(r.Dir)
	if math.Abs(denom) < 1e-6 {
		return 0, false
	}
	t := p.Position.Sub(r.Origin).Dot(p.Normal) / denom
	return t, t > Epsilon
}

// Ray is a half-line; Dir is kept normalized.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// At returns the point at distance t.
func (r Ray) At(t float64) Vec3 { return r.Origin.Add(r.Dir.Mul(t)) }

// HitRecord describes the nearest surface along a ray.
type HitRecord struct {
	Distance  float64
	Point     Vec3
	Normal    Vec3
	Color     Vec3
	IsLight   bool
	Emission  float64
	Material  MaterialKind
	Roughness float64
	IOR       float64
	Sphere    int // index into Scene.Spheres, -1 for planes
}

func sphereHit(spheres []Sphere, idx int, r Ray, t float64) HitRecord {
	s := spheres[idx]
	p := r.At(t)
	return HitRecord{
		Distance:  t,
		Point:     p,
		Normal:    p.Sub(s.Center).Norm(),
		Color:     s.Color,
		IsLight:   s.IsLight,
		Emission:  s.Emission,
		Material:  s.Material,
		Roughness: s.Roughness,
		IOR:       s.IOR,
		Sphere:    idx,
	}
}

// Scene is immutable after NewScene and safe for concurrent reads.
type Scene struct {
	Spheres []Sphere
	Planes  []Plane
	lights  []int
	bvh     *BVH
}

// NewScene copies the primitives and builds the sphere BVH.
func NewScene(spheres []Sphere, planes []Plane) *Scene {
	s := &Scene{
		Spheres: append([]Sphere(nil), spheres...),
		Planes:  append([]Plane(nil), planes...),
	}
	for i, sp := range s.Spheres {
		if sp.IsLight {
			s.lights = append(s.lights, i)
		}
	}
	s.bvh = BuildBVH(s.Spheres)
	return s
}

// DefaultScene returns the benchmark room.
func DefaultScene() *Scene {
	white := V(1, 1, 1)
	spheres := []Sphere{
		// lights
		{Center: V(0, 3.5, 1), Radius: 0.8, Color: white, IsLight: true, Emission: 2.5, Material: Diffuse, Roughness: 1, IOR: 1},
		{Center: V(-2, 2.5, 1), Radius: 0.3, Color: V(1, 0.9, 0.7), IsLight: true, Emission: 1.0, Material: Diffuse, Roughness: 1, IOR: 1},

		{Center: V(0, 1.2, 2.5), Radius: 1.0, Color: white, Material: Glass, Roughness: 0, IOR: 1.5},
		{Center: V(-1.8, 0.6, 1.5), Radius: 0.6, Color: V(0.8, 0.8, 0.9), Material: Metal, Roughness: 0.1, IOR: 1},
		{Center: V(1.8, 0.6, 1.5), Radius: 0.6, Color: V(1, 0.84, 0), Material: Metal, Roughness: 0.05, IOR: 1},
		{Center: V(0, 0.5, 0.8), Radius: 0.5, Color: V(0.9, 0.9, 1), Material: Glass, Roughness: 0.15, IOR: 1.4},
		{Center: V(-1, 1.5, 3.5), Radius: 0.4, Color: V(1, 0.3, 0.3), Material: Diffuse, Roughness: 1, IOR: 1},
		{Center: V(1.5, 1.8, 4), Radius: 0.5, Color: V(0.3, 1, 0.3), Material: Glass, Roughness: 0.1, IOR: 1.5},
		{Center: V(-0.5, 0.7, 4.5), Radius: 0.4, Color: V(0.3, 0.5, 1), Material: Metal, Roughness: 0.3, IOR: 1},
	}

	planes := []Plane{
		{Position: V(0, 0, 0), Normal: V(0, 1, 0), Color: V(0.75, 0.75, 0.75)},  // floor
		{Position: V(0, 0, 6), Normal: V(0, 0, -1), Color: V(0.9, 0.9, 0.9)},    // back
		{Position: V(-4, 0, 0), Normal: V(1, 0, 0), Color: V(0.9, 0.2, 0.2)},    // left
		{Position: V(4, 0, 0), Normal: V(-1, 0, 0), Color: V(0.2, 0.9, 0.9)},    // right
		{Position: V(0, 4, 0), Normal: V(0, -1, 0), Color: V(0.85, 0.85, 0.85)}, // ceiling
	}

	return NewScene(spheres, planes)
}

// BVH returns the scene's sphere hierarchy.
func (s *Scene) BVH() *BVH { return s.bvh }

// Intersect finds the nearest hit closer than tMax using the BVH for
// spheres and a linear scan for planes.
func (s *Scene) Intersect(r Ray, tMax float64) (HitRecord, bool) {
	hit, ok := s.bvh.Intersect(r, tMax)
	if ok {
		tMax = hit.Distance
	}
	if ph, pok := s.intersectPlanes(r, tMax); pok {
		return ph, true
	}
	return hit, ok
}

// IntersectBrute is Intersect without the BVH. It exists to verify the
// hierarchy.
func (s *Scene) IntersectBrute(r Ray, tMax float64) (HitRecord, bool) {
	best, bestT := -1, tMax
	for i, sp := range s.Spheres {
		if t, ok := sp.intersect(r); ok && t < bestT {
			best, bestT = i, t
		}
	}

	var hit HitRecord
	ok := best >= 0
	if ok {
		hit = sphereHit(s.Spheres, best, r, bestT)
	}
	if ph, pok := s.intersectPlanes(r, bestT); pok {
		return ph, true
	}
	return hit, ok
}

func (s *Scene) intersectPlanes(r Ray, tMax float64) (HitRecord, bool) {
	best, bestT := -1, tMax
	for i, p := range s.Planes {
		if t, ok := p.intersect(r); ok && t < bestT {
			best, bestT = i, t
		}
	}
	if best < 0 {
		return HitRecord{}, false
	}

	p := s.Planes[best]
	return HitRecord{
		Distance:  bestT,
		Point:     r.At(bestT),
		Normal:    p.Normal,
		Color:     p.Color,
		Material:  Diffuse,
		Roughness: 1,
		IOR:       1,
		Sphere:    -1,
	}, true
}
