package cv

import (
	"errors"
	"image"
	"math"
	"runtime"
	"sync"
)

// NoScore is the confidence reported when no valid offset exists
const NoScore = -1.0

// flatVariance is the smallest non-zero variance integer pixel data can have
// (n-1)/n for n >= 2, so anything below it is a flat patch
const flatVariance = 0.5

// Error types
var (
	ErrTemplateTooLarge = errors.New("template larger than search image")
	ErrInvalidImage     = errors.New("invalid image provided")
)

// MatchResult contains template matching results.
// Found reports whether the template fit inside the frame at all; Confidence is
// the maximum correlation coefficient and Location its top-left offset.
type MatchResult struct {
	Found      bool
	Location   image.Point
	Confidence float64
}

// NoMatch is the sentinel result for pairings with no valid offset
func NoMatch() MatchResult {
	return MatchResult{Found: false, Confidence: NoScore}
}

// Meets reports whether the result reaches the given acceptance threshold
func (r MatchResult) Meets(threshold float64) bool {
	return r.Found && r.Confidence >= threshold
}

// Scorer computes the best normalized cross-correlation of a template in a frame.
// Workers bounds the goroutines used per call; 0 means GOMAXPROCS.
type Scorer struct {
	Workers int
}

// NewScorer creates a scorer using up to workers goroutines per call
func NewScorer(workers int) *Scorer {
	return &Scorer{Workers: workers}
}

// Score implements the loop's scorer contract
func (s *Scorer) Score(frame, tmpl *image.RGBA) MatchResult {
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return matchNCC(frame, tmpl, workers)
}

// MatchNCC slides tmpl over frame and returns the offset of the highest
// correlation coefficient (TM_CCOEFF_NORMED over the R, G and B channels).
// Ties resolve to the first offset in raster order.
func MatchNCC(frame, tmpl *image.RGBA) MatchResult {
	return matchNCC(frame, tmpl, 1)
}

// CheckDimensions validates that tmpl can be placed inside frame
func CheckDimensions(frame, tmpl *image.RGBA) error {
	if frame == nil || tmpl == nil {
		return ErrInvalidImage
	}
	fb, tb := frame.Bounds(), tmpl.Bounds()
	if tb.Empty() || fb.Empty() {
		return ErrInvalidImage
	}
	if tb.Dx() > fb.Dx() || tb.Dy() > fb.Dy() {
		return ErrTemplateTooLarge
	}
	return nil
}

type templateStats struct {
	width, height int
	centered      []float64 // (T - mean) per pixel, RGB interleaved
	norm          float64   // sum of centered^2
	count         float64   // pixels per channel
}

func prepareTemplate(tmpl *image.RGBA) templateStats {
	b := tmpl.Bounds()
	w, h := b.Dx(), b.Dy()
	n := float64(w * h)

	var sum [3]float64
	for y := 0; y < h; y++ {
		row := tmpl.Pix[y*tmpl.Stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				sum[c] += float64(row[x*4+c])
			}
		}
	}
	mean := [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}

	centered := make([]float64, w*h*3)
	norm := 0.0
	for y := 0; y < h; y++ {
		row := tmpl.Pix[y*tmpl.Stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				v := float64(row[x*4+c]) - mean[c]
				centered[(y*w+x)*3+c] = v
				norm += v * v
			}
		}
	}

	return templateStats{width: w, height: h, centered: centered, norm: norm, count: n}
}

// integral holds summed-area tables for the frame: one per colour channel
// for plain sums, and one for the squared values of all channels combined
type integral struct {
	stride int
	sum    [3][]uint32
	sq     []uint64
}

func buildIntegral(frame *image.RGBA) *integral {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := w + 1
	size := stride * (h + 1)

	ig := &integral{stride: stride, sq: make([]uint64, size)}
	for c := 0; c < 3; c++ {
		ig.sum[c] = make([]uint32, size)
	}

	for y := 0; y < h; y++ {
		row := frame.Pix[y*frame.Stride:]
		var rowSum [3]uint32
		var rowSq uint64
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				v := row[x*4+c]
				rowSum[c] += uint32(v)
				rowSq += uint64(v) * uint64(v)
			}
			idx := (y+1)*stride + x + 1
			up := y*stride + x + 1
			for c := 0; c < 3; c++ {
				ig.sum[c][idx] = ig.sum[c][up] + rowSum[c]
			}
			ig.sq[idx] = ig.sq[up] + rowSq
		}
	}
	return ig
}

// windowVariance returns sum over channels of sum((I - mean)^2) for the w*h window at (x, y)
func (ig *integral) windowVariance(x, y, w, h int, n float64) float64 {
	a := y*ig.stride + x
	b := y*ig.stride + x + w
	c := (y+h)*ig.stride + x
	d := (y+h)*ig.stride + x + w

	sq := float64(ig.sq[d] - ig.sq[b] - ig.sq[c] + ig.sq[a])
	sumSq := 0.0
	for ch := 0; ch < 3; ch++ {
		s := float64(ig.sum[ch][d] - ig.sum[ch][b] - ig.sum[ch][c] + ig.sum[ch][a])
		sumSq += s * s
	}
	return sq - sumSq/n
}

type rowBest struct {
	score float64
	loc   image.Point
	ok    bool
}

func matchNCC(frame, tmpl *image.RGBA, workers int) MatchResult {
	if err := CheckDimensions(frame, tmpl); err != nil {
		return NoMatch()
	}
	fb, tb := frame.Bounds(), tmpl.Bounds()
	return match(frame, tmpl, workers, preferFFT(fb.Dx(), fb.Dy(), tb.Dx(), tb.Dy()))
}

// match scores every offset directly or through the frequency domain; both
// return the same offset and score
func match(frame, tmpl *image.RGBA, workers int, useFFT bool) MatchResult {
	frame = normalizeOrigin(frame)
	tmpl = normalizeOrigin(tmpl)

	ts := prepareTemplate(tmpl)
	if ts.norm < flatVariance {
		// every offset scores 0
		return MatchResult{Found: true, Confidence: 0}
	}
	ig := buildIntegral(frame)

	maxX := frame.Rect.Dx() - ts.width
	maxY := frame.Rect.Dy() - ts.height
	if workers < 1 {
		workers = 1
	}

	var best rowBest
	if useFFT {
		best = scanFFT(frame, ig, ts, maxX, maxY, workers)
	} else {
		best = scanDirect(frame, ig, ts, maxX, maxY, workers)
	}
	if !best.ok {
		return NoMatch()
	}
	return MatchResult{Found: true, Location: best.loc, Confidence: best.score}
}

func scanDirect(frame *image.RGBA, ig *integral, ts templateStats, maxX, maxY, workers int) rowBest {
	rows := maxY + 1
	if workers > rows {
		workers = rows
	}

	// Contiguous row bands keep the merge order equal to raster order
	results := make([]rowBest, workers)
	band := (rows + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * band
		end := min(start+band, rows)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(slot, start, end int) {
			defer wg.Done()
			results[slot] = scanRows(frame, ig, ts, start, end, maxX)
		}(i, start, end)
	}
	wg.Wait()

	best := rowBest{score: math.Inf(-1)}
	for _, r := range results {
		if r.ok && (!best.ok || r.score > best.score) {
			best = r
		}
	}
	return best
}

func scanRows(frame *image.RGBA, ig *integral, ts templateStats, startY, endY, maxX int) rowBest {
	best := rowBest{}
	for y := startY; y < endY; y++ {
		for x := 0; x <= maxX; x++ {
			score := scoreAt(frame, ig, ts, x, y)
			if !best.ok || score > best.score {
				best = rowBest{score: score, loc: image.Point{X: x, Y: y}, ok: true}
			}
		}
	}
	return best
}

// scanFFT scores every offset from the transformed numerator, then rescores
// the offsets near the peak exactly in raster order
func scanFFT(frame *image.RGBA, ig *integral, ts templateStats, maxX, maxY, workers int) rowBest {
	cols := maxX + 1
	scores := correlate(frame, ts, workers)

	parallel(maxY+1, workers, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < cols; x++ {
				k := y*cols + x
				s := 0.0
				if wv := ig.windowVariance(x, y, ts.width, ts.height, ts.count); wv >= flatVariance {
					s = clamp(scores[k] / math.Sqrt(wv*ts.norm))
				}
				scores[k] = s
			}
		}
	})
	peak := math.Inf(-1)
	for _, s := range scores {
		peak = max(peak, s)
	}

	best := rowBest{}
	for k, s := range scores {
		if s < peak-fftTolerance {
			continue
		}
		x, y := k%cols, k/cols
		exact := scoreAt(frame, ig, ts, x, y)
		if !best.ok || exact > best.score {
			best = rowBest{score: exact, loc: image.Point{X: x, Y: y}, ok: true}
		}
	}
	return best
}

// scoreAt is the correlation coefficient of the window at (x, y); flat windows score 0
func scoreAt(frame *image.RGBA, ig *integral, ts templateStats, x, y int) float64 {
	w, h := ts.width, ts.height
	wv := ig.windowVariance(x, y, w, h, ts.count)
	if wv < flatVariance || ts.norm < flatVariance {
		return 0
	}
	num := 0.0
	for ty := 0; ty < h; ty++ {
		row := frame.Pix[(y+ty)*frame.Stride+x*4:]
		cent := ts.centered[ty*w*3:]
		for tx := 0; tx < w; tx++ {
			p := row[tx*4:]
			t := cent[tx*3:]
			num += t[0]*float64(p[0]) + t[1]*float64(p[1]) + t[2]*float64(p[2])
		}
	}
	return clamp(num / math.Sqrt(wv*ts.norm))
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// normalizeOrigin returns img re-sliced so that its bounds start at (0,0)
func normalizeOrigin(img *image.RGBA) *image.RGBA {
	if img.Rect.Min == (image.Point{}) {
		return img
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	start := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y)
	return &image.RGBA{
		Pix:    img.Pix[start:],
		Stride: img.Stride,
		Rect:   image.Rect(0, 0, w, h),
	}
}

// CropRegion extracts a rectangular region from an image
func CropRegion(img *image.RGBA, rect image.Rectangle) *image.RGBA {
	rect = rect.Intersect(img.Bounds())
	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		src := img.Pix[img.PixOffset(rect.Min.X, y):img.PixOffset(rect.Max.X, y)]
		copy(cropped.Pix[(y-rect.Min.Y)*cropped.Stride:], src)
	}

	return cropped
}
