// Package tensor provides the numeric array types that travel through the
// object store's columnar path: dense matrices (gonum's mat.Dense) and two
// sparse layouts, CSR and COO.
//
// These types bypass the structural codec entirely. A top-level put of one
// of them writes named numeric columns straight to the store, and a get
// rebuilds the value by looking at the column names. Arrays nested inside
// other objects take the structural path instead, via the codec's built-in
// dense-array registration.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CSR is a compressed sparse row matrix. Data holds the nonzero values row
// by row, ColIdx[i] is the column of Data[i], and RowPtr has Rows+1 entries
// with row r's values sitting in Data[RowPtr[r]:RowPtr[r+1]].
type CSR struct {
	Rows, Cols int
	Data       []float64
	ColIdx     []int
	RowPtr     []int
}

// NewCSR validates the layout and builds a CSR matrix. Dimensions must be
// at least 1x1.
func NewCSR(rows, cols int, data []float64, colIdx, rowPtr []int) (*CSR, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("csr: dimensions %dx%d out of range", rows, cols)
	}
	if len(colIdx) != len(data) {
		return nil, fmt.Errorf("csr: %d values but %d column indices", len(data), len(colIdx))
	}
	if len(rowPtr) != rows+1 {
		return nil, fmt.Errorf("csr: row pointer length %d, want %d", len(rowPtr), rows+1)
	}
	if rowPtr[0] != 0 || rowPtr[rows] != len(data) {
		return nil, fmt.Errorf("csr: row pointers must span [0, %d]", len(data))
	}
	for r := 0; r < rows; r++ {
		if rowPtr[r] > rowPtr[r+1] {
			return nil, fmt.Errorf("csr: row pointers decrease at row %d", r)
		}
	}
	for i, c := range colIdx {
		if c < 0 || c >= cols {
			return nil, fmt.Errorf("csr: column index %d at position %d out of range", c, i)
		}
	}
	return &CSR{Rows: rows, Cols: cols, Data: data, ColIdx: colIdx, RowPtr: rowPtr}, nil
}

// Dims returns the matrix dimensions.
func (m *CSR) Dims() (int, int) { return m.Rows, m.Cols }

// At returns the element at row i, column j.
func (m *CSR) At(i, j int) float64 {
	if i < 0 || i >= m.Rows || j < 0 || j >= m.Cols {
		panic(fmt.Sprintf("csr: index (%d,%d) out of range", i, j))
	}
	for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
		if m.ColIdx[k] == j {
			return m.Data[k]
		}
	}
	return 0
}

// ToDense expands the matrix into a dense gonum matrix.
func (m *CSR) ToDense() *mat.Dense {
	d := mat.NewDense(m.Rows, m.Cols, nil)
	for r := 0; r < m.Rows; r++ {
		for k := m.RowPtr[r]; k < m.RowPtr[r+1]; k++ {
			d.Set(r, m.ColIdx[k], m.Data[k])
		}
	}
	return d
}

// COO is a coordinate-format sparse matrix: entry i is the triple
// (RowIdx[i], ColIdx[i], Data[i]). Duplicate coordinates are summed, the
// usual COO convention.
type COO struct {
	Rows, Cols int
	RowIdx     []int
	ColIdx     []int
	Data       []float64
}

// NewCOO validates the triples and builds a COO matrix. Dimensions must be
// at least 1x1.
func NewCOO(rows, cols int, rowIdx, colIdx []int, data []float64) (*COO, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("coo: dimensions %dx%d out of range", rows, cols)
	}
	if len(rowIdx) != len(data) || len(colIdx) != len(data) {
		return nil, fmt.Errorf("coo: %d values but %d/%d indices", len(data), len(rowIdx), len(colIdx))
	}
	for i := range data {
		if rowIdx[i] < 0 || rowIdx[i] >= rows || colIdx[i] < 0 || colIdx[i] >= cols {
			return nil, fmt.Errorf("coo: entry %d at (%d,%d) out of range", i, rowIdx[i], colIdx[i])
		}
	}
	return &COO{Rows: rows, Cols: cols, RowIdx: rowIdx, ColIdx: colIdx, Data: data}, nil
}

// Dims returns the matrix dimensions.
func (m *COO) Dims() (int, int) { return m.Rows, m.Cols }

// At returns the element at row i, column j, summing duplicate entries.
func (m *COO) At(i, j int) float64 {
	if i < 0 || i >= m.Rows || j < 0 || j >= m.Cols {
		panic(fmt.Sprintf("coo: index (%d,%d) out of range", i, j))
	}
	var sum float64
	for k := range m.Data {
		if m.RowIdx[k] == i && m.ColIdx[k] == j {
			sum += m.Data[k]
		}
	}
	return sum
}

// ToDense expands the matrix into a dense gonum matrix.
func (m *COO) ToDense() *mat.Dense {
	d := mat.NewDense(m.Rows, m.Cols, nil)
	for k := range m.Data {
		d.Set(m.RowIdx[k], m.ColIdx[k], d.At(m.RowIdx[k], m.ColIdx[k])+m.Data[k])
	}
	return d
}
