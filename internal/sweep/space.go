// Package sweep runs the message-size parameter space with a bounded
// worker pool and resumable checkpoints.
package sweep

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/mesh-simulator/internal/config"
)

// Combination is one point of the parameter space.
type Combination struct {
	Size     int
	Mesh     int
	Loss     int
	Interval int
}

// Key identifies the combination in checkpoints and run directories.
func (c Combination) Key() string {
	return fmt.Sprintf("%d-%d-%d-%d", c.Size, c.Mesh, c.Loss, c.Interval)
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (Combination, error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 {
		return Combination{}, fmt.Errorf("invalid combination key %q", key)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Combination{}, fmt.Errorf("invalid combination key %q: %w", key, err)
		}
		v[i] = n
	}
	return Combination{Size: v[0], Mesh: v[1], Loss: v[2], Interval: v[3]}, nil
}

// Space returns the Cartesian product of the sweep dimensions without
// duplicates.
func Space(cfg config.Sweep) []Combination {
	seen := make(map[Combination]bool)
	var out []Combination
	for _, size := range cfg.Sizes {
		for _, mesh := range cfg.Meshes {
			for _, loss := range cfg.Losses {
				for _, interval := range cfg.Intervals {
					c := Combination{Size: size, Mesh: mesh, Loss: loss, Interval: interval}
					if seen[c] {
						continue
					}
					seen[c] = true
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// MemoryGB estimates the memory footprint of one run of c.
func MemoryGB(c Combination) int {
	switch {
	case c.Size == 15:
		return 12
	case c.Size >= 13:
		return 8
	case c.Size >= 9 && c.Mesh >= 2:
		return 4
	default:
		return 2
	}
}

// Bucket groups combinations of the same memory cost.
type Bucket struct {
	MemoryGB     int
	PoolSize     int
	Combinations []Combination
}

// Buckets partitions combos by memory cost, cheapest first, and sizes
// each bucket's pool so that PoolSize*MemoryGB fits in maxMemoryGB.
// Combinations inside a bucket are shuffled with seed.
func Buckets(combos []Combination, maxMemoryGB int, seed uint64) []Bucket {
	byMemory := make(map[int][]Combination)
	for _, c := range combos {
		m := MemoryGB(c)
		byMemory[m] = append(byMemory[m], c)
	}
	costs := make([]int, 0, len(byMemory))
	for m := range byMemory {
		costs = append(costs, m)
	}
	slices.Sort(costs)

	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]Bucket, 0, len(costs))
	for _, m := range costs {
		cs := byMemory[m]
		rng.Shuffle(len(cs), func(i, j int) { cs[i], cs[j] = cs[j], cs[i] })
		out = append(out, Bucket{
			MemoryGB:     m,
			PoolSize:     max(1, maxMemoryGB/m),
			Combinations: cs,
		})
	}
	return out
}
