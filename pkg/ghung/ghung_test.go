package ghung

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func coolMatrix(rng *rand.Rand, r, c int, scale float64) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for ind_r := range r {
		for ind_c := range c {
			m.Set(ind_r, ind_c, math.Round(rng.Float64()*scale))
		}
	}
	return m
}

// Tries every injective row to column mapping
func bruteForce(m mat.Matrix) float64 {
	rows, cols := m.Dims()
	best := math.Inf(1)
	used := make([]bool, cols)
	var walk func(row, left int, sum float64)
	walk = func(row, left int, sum float64) {
		if row == rows {
			if left == 0 {
				best = min(best, sum)
			}
			return
		}
		if rows-row > left {
			walk(row+1, left, sum)
		}
		for c := range cols {
			if used[c] || left == 0 {
				continue
			}
			used[c] = true
			walk(row+1, left-1, sum+m.At(row, c))
			used[c] = false
		}
	}
	walk(0, min(rows, cols), 0)
	return best
}

func requireValid(t *testing.T, m mat.Matrix, ass []int) {
	t.Helper()
	rows, cols := m.Dims()
	require.Len(t, ass, rows)
	taken := make(map[int]int)
	assigned := 0
	for r, c := range ass {
		if c < 0 {
			continue
		}
		require.Less(t, c, cols)
		prev, dup := taken[c]
		require.False(t, dup, "column %d given to rows %d and %d", c, prev, r)
		taken[c] = r
		assigned++
	}
	assert.Equal(t, min(rows, cols), assigned)
}

func TestSolve(t *testing.T) {
	tests := []struct {
		name string
		rows int
		data []float64
		want []int
	}{
		{"single", 1, []float64{7}, []int{0}},
		{"swap", 2, []float64{35, 40, 25, 100}, []int{1, 0}},
		{"anti diagonal", 3, []float64{1, 2, 3, 2, 4, 6, 3, 6, 9}, []int{2, 1, 0}},
		{"wide", 2, []float64{5, 1, 9, 1, 2, 9}, []int{1, 0}},
		{"tall", 3, []float64{5, 1, 1, 2, 9, 9}, []int{1, 0, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mat.NewDense(tt.rows, len(tt.data)/tt.rows, tt.data)
			ass := Solve(m)
			requireValid(t, m, ass)
			assert.Equal(t, tt.want, ass)
			assert.Equal(t, bruteForce(m), Cost(m, ass))
		})
	}
}

func TestSolveTied(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1})
	ass := Solve(m)
	requireValid(t, m, ass)
	assert.Equal(t, 3.0, Cost(m, ass))
}

func TestSolveEmpty(t *testing.T) {
	assert.Empty(t, Solve(&mat.Dense{}))
}

func TestSanity(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		m := coolMatrix(rng, 1+rng.IntN(5), 1+rng.IntN(5), 50)
		ass := Solve(m)
		requireValid(t, m, ass)
		require.Equal(t, bruteForce(m), Cost(m, ass), "matrix:\n%v", mat.Formatted(m))
	}
}
