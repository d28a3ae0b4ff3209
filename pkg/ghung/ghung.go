// Package ghung solves the rectangular assignment problem exactly.
package ghung

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Minimal cost assignment. Returns the column of every row, -1 for rows
// left over when there are more rows than columns.
func Solve(m mat.Matrix) []int {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		ass := make([]int, rows)
		for r := range ass {
			ass[r] = -1
		}
		return ass
	}
	if rows > cols {
		by_col := solve(m.T())
		ass := make([]int, rows)
		for r := range ass {
			ass[r] = -1
		}
		for c, r := range by_col {
			ass[r] = c
		}
		return ass
	}
	return solve(m)
}

// Sum of the assigned cells
func Cost(m mat.Matrix, ass []int) float64 {
	var sum float64
	for r, c := range ass {
		if c >= 0 {
			sum += m.At(r, c)
		}
	}
	return sum
}

// Shortest augmenting path with row and column potentials, rows <= cols.
// Index 0 of the potential and path slices is a virtual column.
func solve(m mat.Matrix) []int {
	n, k := m.Dims()
	u := make([]float64, n+1)
	v := make([]float64, k+1)
	owner := make([]int, k+1)
	way := make([]int, k+1)

	for row := 1; row <= n; row++ {
		owner[0] = row
		col0 := 0
		minv := make([]float64, k+1)
		for c := range minv {
			minv[c] = math.Inf(1)
		}
		used := make([]bool, k+1)
		for {
			used[col0] = true
			row0 := owner[col0]
			delta := math.Inf(1)
			col1 := 0
			for c := 1; c <= k; c++ {
				if used[c] {
					continue
				}
				cur := m.At(row0-1, c-1) - u[row0] - v[c]
				if cur < minv[c] {
					minv[c] = cur
					way[c] = col0
				}
				if minv[c] < delta {
					delta = minv[c]
					col1 = c
				}
			}
			for c := 0; c <= k; c++ {
				if used[c] {
					u[owner[c]] += delta
					v[c] -= delta
				} else {
					minv[c] -= delta
				}
			}
			col0 = col1
			if owner[col0] == 0 {
				break
			}
		}
		for col0 != 0 {
			col1 := way[col0]
			owner[col0] = owner[col1]
			col0 = col1
		}
	}

	ass := make([]int, n)
	for c := 1; c <= k; c++ {
		if owner[c] != 0 {
			ass[owner[c]-1] = c - 1
		}
	}
	return ass
}
