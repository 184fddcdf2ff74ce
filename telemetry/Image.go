package telemetry

import (
	"fmt"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/floats"
)

// GridImage saves a control map of numGrid x numGrid cells as a
// grayscale PNG image at path, drawing each cell as a square of cell
// pixels. Values are scaled linearly so that the smallest value of the
// map is black and the largest is white.
func GridImage(values []float64, numGrid, cell int, path string) error {
	if numGrid < 1 || cell < 1 {
		return fmt.Errorf("gridImage: grid and cell sizes must be "+
			"positive: have(%v, %v)", numGrid, cell)
	}
	if len(values) != numGrid*numGrid {
		return fmt.Errorf("gridImage: map has wrong size \n\twant(%v)"+
			"\n\thave(%v)", numGrid*numGrid, len(values))
	}

	lo, hi := floats.Min(values), floats.Max(values)
	scale := 0.0
	if hi > lo {
		scale = 1 / (hi - lo)
	}

	size := float64(cell)
	dc := gg.NewContext(numGrid*cell, numGrid*cell)
	for i, v := range values {
		row, col := i/numGrid, i%numGrid
		shade := (v - lo) * scale
		dc.SetRGB(shade, shade, shade)
		dc.DrawRectangle(float64(col)*size, float64(row)*size, size, size)
		dc.Fill()
	}
	return dc.SavePNG(path)
}
