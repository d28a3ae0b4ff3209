// Package centroid associates per-frame centroids with persistent
// identities by nearest-centroid distance.
package centroid

import (
	"errors"
	"fmt"
	"image"
	"math"
	"slices"

	"github.com/Robogera/headcount/pkg/gheap"
	"github.com/Robogera/headcount/pkg/ghung"
	"github.com/Robogera/headcount/pkg/seq"
	hung "github.com/arthurkushman/go-hungarian"
	"gonum.org/v1/gonum/mat"
)

var (
	ERR_BAD_DISTANCE = errors.New("Max distance must be positive")
	ERR_BAD_STRATEGY = errors.New("Unknown association strategy")
)

type Strategy uint8

const (
	// Closest identity picks first, second best columns are never tried
	StrategyGreedy Strategy = iota
	// Minimal total distance over all pairs
	StrategyHungarian
)

func (s Strategy) String() string {
	switch s {
	case StrategyGreedy:
		return "greedy"
	case StrategyHungarian:
		return "hungarian"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

type Object struct {
	id          uint64
	centroid    image.Point
	disappeared uint
}

func (o *Object) Id() uint64            { return o.id }
func (o *Object) Centroid() image.Point { return o.centroid }
func (o *Object) Disappeared() uint     { return o.disappeared }

// Identity state after an update. Observation is the index of the
// centroid the identity was matched with this frame, -1 if none.
type Assignment struct {
	Id          uint64
	Centroid    image.Point
	Observation int
}

type Result struct {
	// One entry per live identity, ascending id
	Assignments []Assignment
	Evicted     []uint64
	Statuses    []Status
}

// Owns the identity table. Not safe for concurrent use.
type Tracker struct {
	objects         map[uint64]*Object
	next_id         uint64
	max_distance    float64
	max_disappeared uint
	strategy        Strategy
}

func NewTracker(max_distance float64, max_disappeared uint, strategy Strategy) (*Tracker, error) {
	if !(max_distance > 0) {
		return nil, fmt.Errorf("Got %f: %w", max_distance, ERR_BAD_DISTANCE)
	}
	if strategy != StrategyGreedy && strategy != StrategyHungarian {
		return nil, fmt.Errorf("%s: %w", strategy, ERR_BAD_STRATEGY)
	}
	return &Tracker{
		objects:         make(map[uint64]*Object),
		max_distance:    max_distance,
		max_disappeared: max_disappeared,
		strategy:        strategy,
	}, nil
}

func (t *Tracker) Len() int { return len(t.objects) }

func (t *Tracker) Object(id uint64) (*Object, bool) {
	o, ok := t.objects[id]
	return o, ok
}

// Ascending
func (t *Tracker) ids() []uint64 {
	ids := make([]uint64, 0, len(t.objects))
	for id := range t.objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *Tracker) register(c image.Point) *Object {
	o := &Object{id: t.next_id, centroid: c}
	t.objects[o.id] = o
	t.next_id++
	return o
}

func (t *Tracker) Update(centroids []image.Point) Result {
	var result Result
	ids := t.ids()
	matched_cols := make(map[int]uint64, len(centroids))
	observations := make(map[uint64]int, len(ids)+len(centroids))

	var dist *mat.Dense
	pairs := map[int]int{}
	if len(ids) > 0 && len(centroids) > 0 {
		dist = t.distances(ids, centroids)
		switch t.strategy {
		case StrategyHungarian:
			pairs = t.hungarian(dist)
		default:
			pairs = t.greedy(dist, ids)
		}
	}

	for row, id := range ids {
		o := t.objects[id]
		if col, ok := pairs[row]; ok {
			moved := dist.At(row, col)
			o.centroid = centroids[col]
			o.disappeared = 0
			matched_cols[col] = id
			observations[id] = col
			result.Statuses = append(result.Statuses, StatusMatched{id: id, observation: col, moved: moved})
			continue
		}
		o.disappeared++
		if o.disappeared > t.max_disappeared {
			delete(t.objects, id)
			result.Evicted = append(result.Evicted, id)
			result.Statuses = append(result.Statuses, StatusEvicted{id: id, coord: o.centroid, missed: o.disappeared})
			continue
		}
		nearest := -1.0
		if dist != nil {
			_, nearest, _ = seq.MinInd(slices.All(dist.RawRowView(row)))
		}
		result.Statuses = append(result.Statuses, StatusMissed{id: id, missed: o.disappeared, nearest: nearest, max_distance: t.max_distance})
	}

	for col, c := range centroids {
		if _, ok := matched_cols[col]; ok {
			continue
		}
		o := t.register(c)
		observations[o.id] = col
		result.Statuses = append(result.Statuses, StatusNew{id: o.id, coord: c})
	}

	result.Assignments = make([]Assignment, 0, len(t.objects))
	for _, id := range t.ids() {
		observation, ok := observations[id]
		if !ok {
			observation = -1
		}
		result.Assignments = append(result.Assignments, Assignment{
			Id:          id,
			Centroid:    t.objects[id].centroid,
			Observation: observation,
		})
	}
	return result
}

// Rows are existing identities in ascending id order, columns are
// the incoming centroids
func (t *Tracker) distances(ids []uint64, centroids []image.Point) *mat.Dense {
	dist := mat.NewDense(len(ids), len(centroids), nil)
	for row, id := range ids {
		from := t.objects[id].centroid
		for col, to := range centroids {
			dist.Set(row, col, euclidean(from, to))
		}
	}
	return dist
}

func euclidean(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

type rowMin struct {
	row, col int
	dist     float64
}

// Rows are visited by ascending row minimum, ties to the lower id. A row
// whose closest column is taken or too far stays unmatched this frame.
func (t *Tracker) greedy(dist *mat.Dense, ids []uint64) map[int]int {
	rows, cols := dist.Dims()
	queue := gheap.NewHeap(func(a, b rowMin) bool {
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		return ids[a.row] < ids[b.row]
	})
	for row := range rows {
		col, d, _ := seq.MinInd(slices.All(dist.RawRowView(row)))
		queue.Push(rowMin{row: row, col: col, dist: d})
	}

	used_cols := make([]bool, cols)
	pairs := make(map[int]int, min(rows, cols))
	for !queue.IsEmpty() {
		candidate := queue.Pop()
		if used_cols[candidate.col] || candidate.dist > t.max_distance {
			continue
		}
		used_cols[candidate.col] = true
		pairs[candidate.row] = candidate.col
	}
	return pairs
}

// Pairs beyond max distance are solved for but dropped afterwards.
// The library result is kept only when it is a complete assignment as
// cheap as the exact one.
func (t *Tracker) hungarian(dist *mat.Dense) map[int]int {
	rows, cols := dist.Dims()
	n := max(rows, cols)
	padding := mat.Max(dist)*float64(n) + t.max_distance + 1
	square := mat.NewDense(n, n, nil)
	raw := make([][]float64, n)
	for r := range n {
		for c := range n {
			if r < rows && c < cols {
				square.Set(r, c, dist.At(r, c))
			} else {
				square.Set(r, c, padding)
			}
		}
		raw[r] = slices.Clone(square.RawRowView(r))
	}

	exact := ghung.Solve(square)
	ass, ok := fromLibrary(hung.SolveMin(raw), n)
	if !ok || ghung.Cost(square, ass) > ghung.Cost(square, exact)+1e-9 {
		ass = exact
	}

	pairs := make(map[int]int, min(rows, cols))
	for row, col := range ass {
		if row < rows && col < cols && dist.At(row, col) <= t.max_distance {
			pairs[row] = col
		}
	}
	return pairs
}

// Flattens the solver output, ok only if every row of the n by n
// matrix holds exactly one distinct column
func fromLibrary(solved map[int]map[int]float64, n int) ([]int, bool) {
	if len(solved) != n {
		return nil, false
	}
	ass := make([]int, n)
	taken := make([]bool, n)
	for row := range n {
		assigned, ok := solved[row]
		if !ok || len(assigned) != 1 {
			return nil, false
		}
		for col := range assigned {
			if col < 0 || col >= n || taken[col] {
				return nil, false
			}
			taken[col] = true
			ass[row] = col
		}
	}
	return ass, true
}
