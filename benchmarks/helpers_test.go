package benchmarks

import (
	"math/rand/v2"

	"github.com/utkarsh5026/stressme/tracer"
)

// randomRays returns n rays from around the default camera into the scene.
func randomRays(n int, seed uint64) []tracer.Ray {
	rng := rand.New(rand.NewPCG(seed, 1))
	rays := make([]tracer.Ray, n)
	for i := range rays {
		origin := tracer.V(rng.Float64()*2-1, 1+rng.Float64(), -2)
		dir := tracer.V(rng.Float64()*2-1, rng.Float64()*2-1, 1).Norm()
		rays[i] = tracer.Ray{Origin: origin, Dir: dir}
	}
	return rays
}

// randomSpheres scatters n small diffuse spheres in a 20-unit cube.
func randomSpheres(n int, seed uint64) []tracer.Sphere {
	rng := rand.New(rand.NewPCG(seed, 2))
	spheres := make([]tracer.Sphere, n)
	for i := range spheres {
		spheres[i] = tracer.Sphere{
			Center: tracer.V(rng.Float64()*20-10, rng.Float64()*20-10, rng.Float64()*20),
			Radius: 0.1 + rng.Float64()*0.4,
			Color:  tracer.V(0.5, 0.5, 0.5),
		}
	}
	return spheres
}
