package optmath

import (
	"math"
	"sort"
)

// defaultSurfaceVol is the fallback implied vol used when a surface is
// built from an empty sample set.
const defaultSurfaceVol = 0.20

// VolSurface is a rectangular grid of implied vols, ascending in both
// time-to-expiry (years) and strike. It is immutable once constructed and
// safe to share across goroutines.
type VolSurface struct {
	taus    []float64   // ascending
	strikes []float64   // ascending
	vols    [][]float64 // vols[i][j] at (taus[i], strikes[j]); always > 0
}

// axisIndex performs the bilinear index step: clamp x into
// [axis[0], axis[len-1]] and return the bracketing index i and the
// interpolation weight w = (x-axis[i])/(axis[i+1]-axis[i]).
func axisIndex(axis []float64, x float64) (i int, w float64) {
	n := len(axis)
	if n == 1 {
		return 0, 0
	}
	if x <= axis[0] {
		return 0, 0
	}
	if x >= axis[n-1] {
		return n - 2, 1
	}
	// axis is sorted ascending; find the bracket.
	idx := sort.SearchFloat64s(axis, x)
	if axis[idx] == x {
		if idx == n-1 {
			return idx - 1, 1
		}
		return idx, 0
	}
	i = idx - 1
	span := axis[i+1] - axis[i]
	if span == 0 {
		return i, 0
	}
	return i, (x - axis[i]) / span
}

// GetVolatility implements a bilinear-in-variance surface lookup.
// Returns NaN for a non-positive query T; callers must check and skip
// rather than propagate.
func (v *VolSurface) GetVolatility(t, k float64) float64 {
	if t <= 0 {
		return math.NaN()
	}

	i0, wt := axisIndex(v.taus, t)
	j0, wk := axisIndex(v.strikes, k)
	i1, j1 := i0, j0
	if i0+1 < len(v.taus) {
		i1 = i0 + 1
	}
	if j0+1 < len(v.strikes) {
		j1 = j0 + 1
	}

	variance := func(i, j int) float64 {
		sigma := v.vols[i][j]
		return sigma * sigma * v.taus[i]
	}

	v00 := variance(i0, j0)
	v10 := variance(i1, j0)
	v01 := variance(i0, j1)
	v11 := variance(i1, j1)

	total := (1-wt)*(1-wk)*v00 + wt*(1-wk)*v10 + (1-wt)*wk*v01 + wt*wk*v11
	return math.Sqrt(total / t)
}

// VolPoint is one scattered (tau, strike, vol) sample fed to the builder.
type VolPoint struct {
	Tau    float64
	Strike float64
	Vol    float64
}

// BuildVolSurface sorts the unique tau/strike axes out of scattered
// samples, fills unset grid cells with the nearest sampled vol
// (expanding square search), and falls back to defaultSurfaceVol for an
// empty input
func BuildVolSurface(points []VolPoint) *VolSurface {
	if len(points) == 0 {
		return &VolSurface{
			taus:    []float64{TMin},
			strikes: []float64{0},
			vols:    [][]float64{{defaultSurfaceVol}},
		}
	}

	taus := uniqueSorted(points, func(p VolPoint) float64 { return p.Tau })
	strikes := uniqueSorted(points, func(p VolPoint) float64 { return p.Strike })

	tauIdx := indexOf(taus)
	strikeIdx := indexOf(strikes)

	set := make([][]bool, len(taus))
	vols := make([][]float64, len(taus))
	for i := range vols {
		vols[i] = make([]float64, len(strikes))
		set[i] = make([]bool, len(strikes))
	}

	for _, p := range points {
		i := tauIdx[p.Tau]
		j := strikeIdx[p.Strike]
		vols[i][j] = p.Vol
		set[i][j] = true
	}

	for i := range vols {
		for j := range vols[i] {
			if set[i][j] {
				continue
			}
			vols[i][j] = nearestSet(vols, set, i, j)
		}
	}

	return &VolSurface{taus: taus, strikes: strikes, vols: vols}
}

func uniqueSorted(points []VolPoint, key func(VolPoint) float64) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, p := range points {
		v := key(p)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func indexOf(axis []float64) map[float64]int {
	m := make(map[float64]int, len(axis))
	for i, v := range axis {
		m[v] = i
	}
	return m
}

// nearestSet expands a square search ring around (i0, j0) until it finds
// a grid cell the builder actually populated from a sample.
func nearestSet(vols [][]float64, set [][]bool, i0, j0 int) float64 {
	rows, cols := len(vols), len(vols[0])
	maxRadius := rows + cols
	for radius := 1; radius <= maxRadius; radius++ {
		for di := -radius; di <= radius; di++ {
			i := i0 + di
			if i < 0 || i >= rows {
				continue
			}
			for dj := -radius; dj <= radius; dj++ {
				if abs(di) != radius && abs(dj) != radius {
					continue // only the expanding ring, not the interior
				}
				j := j0 + dj
				if j < 0 || j >= cols {
					continue
				}
				if set[i][j] {
					return vols[i][j]
				}
			}
		}
	}
	return defaultSurfaceVol
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
