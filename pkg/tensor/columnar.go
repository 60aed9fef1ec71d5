package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/phautamaki/orchard/pkg/api"
)

// Column names of the store's columnar layouts. The presence of "indptr"
// marks CSR, "row" marks COO, and a lone "data" column is a dense matrix;
// readers dispatch on these names, so they are part of the stored format.
const (
	colData    = "data"
	colIndices = "indices"
	colIndptr  = "indptr"
	colRow     = "row"
	colCol     = "col"
)

// ToColumnar recognizes the array types that take the raw store path and
// converts them to their columnar form. ok is false for every other type,
// which means the value belongs on the structural path.
func ToColumnar(v any) (c *api.Columnar, ok bool) {
	switch m := v.(type) {
	case *mat.Dense:
		return denseToColumnar(m), true
	case *CSR:
		return &api.Columnar{
			Shape:  []int{m.Rows, m.Cols},
			Floats: map[string][]float64{colData: m.Data},
			Ints:   map[string][]int{colIndices: m.ColIdx, colIndptr: m.RowPtr},
		}, true
	case *COO:
		return &api.Columnar{
			Shape:  []int{m.Rows, m.Cols},
			Floats: map[string][]float64{colData: m.Data},
			Ints:   map[string][]int{colRow: m.RowIdx, colCol: m.ColIdx},
		}, true
	}
	return nil, false
}

// FromColumnar rebuilds the array value a columnar payload encodes. The
// result is a *mat.Dense, *CSR or *COO depending on the column names.
func FromColumnar(c *api.Columnar) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("tensor: nil columnar payload")
	}
	rows, cols, err := shape2(c.Shape)
	if err != nil {
		return nil, err
	}
	data, ok := c.Floats[colData]
	if !ok {
		return nil, fmt.Errorf("tensor: columnar payload has no %q column", colData)
	}

	if indptr, ok := c.Ints[colIndptr]; ok {
		return NewCSR(rows, cols, data, c.Ints[colIndices], indptr)
	}
	if rowIdx, ok := c.Ints[colRow]; ok {
		return NewCOO(rows, cols, rowIdx, c.Ints[colCol], data)
	}

	if len(data) != rows*cols {
		return nil, fmt.Errorf("tensor: dense payload has %d values for shape %dx%d", len(data), rows, cols)
	}
	return mat.NewDense(rows, cols, data), nil
}

func denseToColumnar(d *mat.Dense) *api.Columnar {
	rows, cols := d.Dims()
	// Copy element-wise rather than through RawMatrix, so views with a
	// stride wider than cols serialize correctly.
	buf := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			buf = append(buf, d.At(r, c))
		}
	}
	return &api.Columnar{
		Shape:  []int{rows, cols},
		Floats: map[string][]float64{colData: buf},
	}
}

func shape2(shape []int) (rows, cols int, err error) {
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("tensor: shape %v is not two-dimensional", shape)
	}
	if shape[0] < 1 || shape[1] < 1 {
		return 0, 0, fmt.Errorf("tensor: shape %v out of range", shape)
	}
	return shape[0], shape[1], nil
}
