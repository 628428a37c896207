package cv

import (
	"image"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// fftCrossover is the template area, per bit of transform size, above which
// the frequency-domain numerator beats the direct sum
const fftCrossover = 8

// fftTolerance bounds the rounding error of transformed scores. Offsets within
// it of the peak are rescored exactly so ties still resolve in raster order.
const fftTolerance = 1e-6

// fftSize returns the smallest length >= n whose only factors are 2, 3 and 5
func fftSize(n int) int {
	for m := n; ; m++ {
		r := m
		for _, p := range [...]int{2, 3, 5} {
			for r%p == 0 {
				r /= p
			}
		}
		if r == 1 {
			return m
		}
	}
}

// preferFFT picks the frequency-domain numerator for large templates
func preferFFT(frameW, frameH, w, h int) bool {
	if frameW < 2 || frameH < 2 {
		return false
	}
	nx, ny := fftSize(frameW), fftSize(frameH)
	bits := 0
	for n := nx * ny; n > 1; n >>= 1 {
		bits++
	}
	return w*h > fftCrossover*bits
}

// parallel splits [0, n) into contiguous chunks, one goroutine each
func parallel(n, workers int, fn func(start, end int)) {
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}

// grid is a zero-padded nx*ny complex plane, row-major
type grid struct {
	nx, ny int
	data   []complex128
}

func newGrid(nx, ny int) *grid {
	return &grid{nx: nx, ny: ny, data: make([]complex128, nx*ny)}
}

// transform runs a 2D DFT (or the unnormalized inverse) in place. Only the
// first rows rows are transformed in the row pass (the rest must be zero) and
// only the first cols columns in the column pass.
func (g *grid) transform(rows, cols int, inverse bool, workers int) {
	parallel(rows, workers, func(start, end int) {
		fft := fourier.NewCmplxFFT(g.nx)
		buf := make([]complex128, g.nx)
		for y := start; y < end; y++ {
			row := g.data[y*g.nx : (y+1)*g.nx]
			copy(buf, row)
			if inverse {
				fft.Sequence(row, buf)
			} else {
				fft.Coefficients(row, buf)
			}
		}
	})
	parallel(cols, workers, func(start, end int) {
		fft := fourier.NewCmplxFFT(g.ny)
		in := make([]complex128, g.ny)
		out := make([]complex128, g.ny)
		for x := start; x < end; x++ {
			for y := 0; y < g.ny; y++ {
				in[y] = g.data[y*g.nx+x]
			}
			if inverse {
				fft.Sequence(out, in)
			} else {
				fft.Coefficients(out, in)
			}
			for y := 0; y < g.ny; y++ {
				g.data[y*g.nx+x] = out[y]
			}
		}
	})
}

// correlate returns, for every valid offset, the sum over R, G and B of the
// centred template times the frame window beneath it. The result is
// row-major with (frame width - template width + 1) columns.
//
// R and G travel together as the real and imaginary parts of one plane:
// the real part of (Ir + iIg)(Tr - iTg) is Ir*Tr + Ig*Tg.
func correlate(frame *image.RGBA, ts templateStats, workers int) []float64 {
	fw, fh := frame.Rect.Dx(), frame.Rect.Dy()
	nx, ny := fftSize(fw), fftSize(fh)
	cols, rows := fw-ts.width+1, fh-ts.height+1

	acc := newGrid(nx, ny)
	tmpl := newGrid(nx, ny)

	for y := 0; y < fh; y++ {
		src := frame.Pix[y*frame.Stride:]
		dst := acc.data[y*nx:]
		for x := 0; x < fw; x++ {
			dst[x] = complex(float64(src[x*4]), float64(src[x*4+1]))
		}
	}
	fillTemplate(tmpl, ts, 0, 1)
	acc.transform(fh, nx, false, workers)
	tmpl.transform(ts.height, nx, false, workers)
	multiplyConj(acc.data, tmpl.data, nil)

	blue := newGrid(nx, ny)
	for y := 0; y < fh; y++ {
		src := frame.Pix[y*frame.Stride:]
		dst := blue.data[y*nx:]
		for x := 0; x < fw; x++ {
			dst[x] = complex(float64(src[x*4+2]), 0)
		}
	}
	clear(tmpl.data)
	fillTemplate(tmpl, ts, 2, -1)
	blue.transform(fh, nx, false, workers)
	tmpl.transform(ts.height, nx, false, workers)
	multiplyConj(acc.data, tmpl.data, blue.data)

	acc.transform(ny, cols, true, workers)

	scale := 1 / float64(nx*ny)
	out := make([]float64, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out[y*cols+x] = real(acc.data[y*nx+x]) * scale
		}
	}
	return out
}

// fillTemplate writes centred channel re (and im when im >= 0) into g's top-left corner
func fillTemplate(g *grid, ts templateStats, re, im int) {
	for y := 0; y < ts.height; y++ {
		cent := ts.centered[y*ts.width*3:]
		dst := g.data[y*g.nx:]
		for x := 0; x < ts.width; x++ {
			v := complex(cent[x*3+re], 0)
			if im >= 0 {
				v += complex(0, cent[x*3+im])
			}
			dst[x] = v
		}
	}
}

// multiplyConj sets acc = acc*conj(t), or acc += f*conj(t) when f is non-nil
func multiplyConj(acc, t, f []complex128) {
	for i, tv := range t {
		c := complex(real(tv), -imag(tv))
		if f == nil {
			acc[i] *= c
		} else {
			acc[i] += f[i] * c
		}
	}
}
