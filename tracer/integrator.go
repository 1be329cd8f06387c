package tracer

import (
	"math"
	"math/rand/v2"
)

// Path weights. Each bounce multiplies the path throughput by the surface
// color and one of these factors.
const (
	directWeight       = 0.85
	indirectWeight     = 0.25
	metalWeight        = 0.95
	clearGlassWeight   = 0.98
	frostedWeight      = 0.9
	perturbScale       = 0.3
	clearGlassMaxRough = 0.2
	metalMinRough      = 0.01

	// indirectDepth limits diffuse bounces to the first three path
	// vertices; deeper diffuse hits only gather direct light.
	indirectDepth = 3
)

// radiance traces one path iteratively. The loop carries the throughput of
// the path so far and accumulates light reaching the camera.
func (s *Scene) radiance(r Ray, rng *rand.Rand, maxBounces int) Vec3 {
	var out Vec3
	throughput := splat(1)

	for depth := range maxBounces {
		hit, ok := s.Intersect(r, math.Inf(1))
		if !ok {
			break
		}

		if hit.IsLight {
			out = out.Add(throughput.Hadamard(hit.Color.Mul(hit.Emission)))
			break
		}

		switch hit.Material {
		case Glass:
			origin := hit.Point.Add(r.Dir.Mul(2 * Epsilon))
			if hit.Roughness < clearGlassMaxRough {
				r = Ray{Origin: origin, Dir: r.Dir}
				throughput = throughput.Hadamard(hit.Color).Mul(clearGlassWeight)
			} else {
				jitter := hemisphere(r.Dir, rng).Mul(hit.Roughness * perturbScale)
				r = Ray{Origin: origin, Dir: r.Dir.Add(jitter).Norm()}
				throughput = throughput.Hadamard(hit.Color).Mul(frostedWeight)
			}

		case Metal:
			refl := reflect(r.Dir, hit.Normal)
			if hit.Roughness > metalMinRough {
				refl = refl.Add(hemisphere(refl, rng).Mul(hit.Roughness * perturbScale)).Norm()
			}
			r = Ray{Origin: hit.Point.Add(hit.Normal.Mul(Epsilon)), Dir: refl}
			throughput = throughput.Hadamard(hit.Color).Mul(metalWeight)

		default:
			out = out.Add(throughput.Hadamard(s.directLight(hit)))
			if depth >= indirectDepth {
				return out
			}
			r = Ray{Origin: hit.Point.Add(hit.Normal.Mul(Epsilon)), Dir: hemisphere(hit.Normal, rng)}
			throughput = throughput.Hadamard(hit.Color).Mul(indirectWeight)
		}
	}
	return out
}

// directLight sums the shadow-tested contribution of every emissive sphere
// at a diffuse hit.
func (s *Scene) directLight(hit HitRecord) Vec3 {
	var out Vec3
	origin := hit.Point.Add(hit.Normal.Mul(Epsilon))

	for _, li := range s.lights {
		light := s.Spheres[li]
		toLight := light.Center.Sub(hit.Point)
		dist := toLight.Len()
		dir := toLight.Mul(1 / dist)

		cos := hit.Normal.Dot(dir)
		if cos <= 0 {
			continue
		}

		blocker, blocked := s.Intersect(Ray{Origin: origin, Dir: dir}, dist)
		if blocked && !blocker.IsLight {
			continue
		}
		out = out.Add(hit.Color.Mul(light.Emission * cos * directWeight))
	}
	return out
}

func reflect(d, n Vec3) Vec3 {
	return d.Sub(n.Mul(2 * d.Dot(n)))
}

// hemisphere draws a cosine-weighted direction around n.
func hemisphere(n Vec3, rng *rand.Rand) Vec3 {
	u1, u2 := rng.Float64(), rng.Float64()
	theta := math.Acos(math.Sqrt(1 - u1))
	phi := 2 * math.Pi * u2

	right := V(0, 1, 0)
	if math.Abs(n.X) < 0.9 {
		right = V(1, 0, 0)
	}
	tangent := n.Cross(right).Norm()
	bitangent := n.Cross(tangent)

	st := math.Sin(theta)
	return tangent.Mul(st * math.Cos(phi)).
		Add(bitangent.Mul(st * math.Sin(phi))).
		Add(n.Mul(math.Cos(theta)))
}
