package heatmap

import (
	"image/color"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Visible alpha range of a nonzero cell. The faintest cell keeps minAlpha so it
// stays visible against the transparent background.
const (
	minAlpha   = 6
	alphaRange = 250
)

// heat returns log(count+1) / log(peak+1)
func heat(count, peak uint32) float64 {
	if count == 0 || peak == 0 {
		return 0
	}
	return math.Log(float64(count)+1) / math.Log(float64(peak)+1)
}

// sample converts one counter to a color. Zero is fully transparent.
func sample(count, peak uint32, p Palette) color.NRGBA {
	if count == 0 || peak == 0 {
		return color.NRGBA{}
	}
	h := math.Min(1, heat(count, peak))
	c := p.At(h)
	c.A = uint8(math.Min(255, minAlpha+h*alphaRange))
	return c
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// forEachChunk splits [0, n) into contiguous chunks and runs fn on each in
// parallel. Chunks never overlap, so fn may write to its own index range.
func forEachChunk(n, workers int, fn func(lo, hi int)) {
	if n == 0 {
		return
	}
	workers = workerCount(workers)
	chunk := (n + workers - 1) / workers
	if chunk < 1024 {
		chunk = 1024
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// renderSamples computes one color per counter in parallel
func renderSamples(counts []uint32, peak uint32, p Palette, workers int) []color.NRGBA {
	out := make([]color.NRGBA, len(counts))
	forEachChunk(len(counts), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = sample(counts[i], peak, p)
		}
	})
	return out
}

// decayCounts subtracts amount from every counter above it and returns the new
// maximum found while doing so.
func decayCounts(counts []uint32, amount uint32, workers int) uint32 {
	n := len(counts)
	if n == 0 {
		return 0
	}
	workers = workerCount(workers)
	maxima := make(chan uint32, (n+1023)/1024+workers)
	forEachChunk(n, workers, func(lo, hi int) {
		var local uint32
		for i := lo; i < hi; i++ {
			if counts[i] > amount {
				counts[i] -= amount
			}
			local = max(local, counts[i])
		}
		maxima <- local
	})
	close(maxima)

	var result uint32
	for m := range maxima {
		result = max(result, m)
	}
	return result
}
