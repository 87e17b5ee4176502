// Package numbers produces candidate 6/45 numbers, either uniformly at random
// or from the frequency of past winning draws.
package numbers

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"
)

const (
	// MinNumber and MaxNumber bound every selectable number
	MinNumber = 1
	MaxNumber = 45
	// RecentDraws is the window used for weighted-recent picks
	RecentDraws = 10
)

// Draw is one past winning result
type Draw struct {
	Round   int   `json:"round"`
	Numbers []int `json:"numbers"`
	Bonus   int   `json:"bonus,omitempty"`
}

// Generator picks numbers. A zero history degrades every strategy to random.
type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	history []Draw
}

// NewGenerator creates a generator over history, newest draw first
func NewGenerator(history []Draw, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), history: history}
}

// LoadHistory reads a JSON array of draws. A missing file yields no history.
func LoadHistory(path string) ([]Draw, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read draw history %s: %w", path, err)
	}
	var draws []Draw
	if err := json.Unmarshal(data, &draws); err != nil {
		return nil, fmt.Errorf("failed to parse draw history %s: %w", path, err)
	}
	sort.SliceStable(draws, func(i, j int) bool { return draws[i].Round > draws[j].Round })
	return draws, nil
}

// Random returns count distinct numbers not in exclude, sorted ascending
func (g *Generator) Random(count int, exclude []int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	skip := make(map[int]bool, len(exclude))
	for _, n := range exclude {
		skip[n] = true
	}
	pool := make([]int, 0, MaxNumber)
	for n := MinNumber; n <= MaxNumber; n++ {
		if !skip[n] {
			pool = append(pool, n)
		}
	}
	g.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if count > len(pool) {
		count = len(pool)
	}
	out := append([]int(nil), pool[:count]...)
	sort.Ints(out)
	return out
}

// Frequent returns the count numbers drawn most often across the history
func (g *Generator) Frequent(count int) []int {
	if len(g.history) == 0 {
		return g.Random(count, nil)
	}
	freq := make(map[int]float64)
	for _, d := range g.history {
		for _, n := range d.Numbers {
			if n >= MinNumber && n <= MaxNumber {
				freq[n]++
			}
		}
	}
	return g.top(freq, count)
}

// WeightedRecent samples count numbers weighted by how often they appeared in
// the last RecentDraws draws. Every number keeps a base weight of one.
func (g *Generator) WeightedRecent(count int) []int {
	if len(g.history) == 0 {
		return g.Random(count, nil)
	}
	recent := g.history
	if len(recent) > RecentDraws {
		recent = recent[:RecentDraws]
	}
	weights := make(map[int]float64, MaxNumber)
	for n := MinNumber; n <= MaxNumber; n++ {
		weights[n] = 1
	}
	for _, d := range recent {
		for _, n := range d.Numbers {
			if n >= MinNumber && n <= MaxNumber {
				weights[n] += 2
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	picked := make([]int, 0, count)
	for len(picked) < count && len(weights) > 0 {
		var total float64
		for _, w := range weights {
			total += w
		}
		r := g.rng.Float64() * total
		keys := sortedKeys(weights)
		for _, n := range keys {
			r -= weights[n]
			if r <= 0 {
				picked = append(picked, n)
				delete(weights, n)
				break
			}
		}
		if r > 0 {
			n := keys[len(keys)-1]
			picked = append(picked, n)
			delete(weights, n)
		}
	}
	sort.Ints(picked)
	return picked
}

func (g *Generator) top(score map[int]float64, count int) []int {
	keys := sortedKeys(score)
	sort.SliceStable(keys, func(i, j int) bool { return score[keys[i]] > score[keys[j]] })
	n := min(count, len(keys))
	out := append([]int(nil), keys[:n]...)
	if len(out) < count {
		out = append(out, g.Random(count-len(out), out)...)
	}
	sort.Ints(out)
	return out
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
