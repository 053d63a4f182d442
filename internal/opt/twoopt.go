package opt

import (
	"fieldops/internal/geo"
	"fieldops/internal/model"
)

// Refine2Opt applies a 2-opt pass to an already ordered route, reversing
// segments whenever that shortens the path from the starting position.
// Jobs without coordinates stay pinned at the tail in their given order.
func Refine2Opt(jobs []model.Job, startLat, startLng float64, iterations int) []model.Job {
	if iterations <= 0 {
		iterations = 1
	}
	located := make([]model.Job, 0, len(jobs))
	tail := make([]model.Job, 0)
	for _, j := range jobs {
		if j.Location != nil {
			located = append(located, j)
		} else {
			tail = append(tail, j)
		}
	}
	if len(located) < 3 {
		return append(append([]model.Job(nil), located...), tail...)
	}

	// node 0 is the fixed starting position; nodes 1..n are the jobs
	lats := make([]float64, len(located)+1)
	lngs := make([]float64, len(located)+1)
	lats[0], lngs[0] = startLat, startLng
	for i, j := range located {
		lats[i+1], lngs[i+1] = j.Location.Lat, j.Location.Lng
	}
	order := make([]int, len(located)+1)
	for i := range order {
		order[i] = i
	}

	pathDist := func(ord []int) float64 {
		total := 0.0
		for i := 0; i < len(ord)-1; i++ {
			a, b := ord[i], ord[i+1]
			total += geo.Distance(lats[a], lngs[a], lats[b], lngs[b])
		}
		return total
	}

	best := order
	bestDist := pathDist(best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if d := pathDist(cand); d+1e-9 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}

	out := make([]model.Job, 0, len(jobs))
	for _, idx := range best[1:] {
		out = append(out, located[idx-1])
	}
	return append(out, tail...)
}

// twoOptSwap reverses ord[i..k].
func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
