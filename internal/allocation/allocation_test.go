package allocation

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable_Validation(t *testing.T) {
	tests := map[string]struct {
		names   []string
		weights []float64
		wantErr bool
	}{
		"valid":             {names: []string{"a", "b"}, weights: []float64{0.25, 0.75}},
		"empty":             {names: nil, weights: nil, wantErr: true},
		"length mismatch":   {names: []string{"a"}, weights: []float64{0.5, 0.5}, wantErr: true},
		"negative weight":   {names: []string{"a", "b"}, weights: []float64{1.5, -0.5}, wantErr: true},
		"does not sum to 1": {names: []string{"a", "b"}, weights: []float64{0.5, 0.4}, wantErr: true},
		"within epsilon":    {names: []string{"a", "b", "c"}, weights: []float64{0.1, 0.2, 0.7000000001}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewTable(RoleRead, tc.names, tc.weights)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	table, err := Parse(RoleWrite, []string{"insert.txt", "update.txt", "delete.txt"}, "0.8, 0.1,0.1")
	require.NoError(t, err)
	assert.Equal(t, RoleWrite, table.Role())
	assert.InDelta(t, 0.8, table.Weight(0), 1e-9)

	k, ok := table.Lookup("delete.txt")
	require.True(t, ok)
	assert.Equal(t, 2, k.Index)
	assert.Equal(t, RoleWrite, k.Role)

	_, err = Parse(RoleWrite, []string{"a"}, "x")
	assert.Error(t, err)
}

func TestAllocate_ConvergesToWeights(t *testing.T) {
	tables := [][]float64{
		{1.0},
		{0.5, 0.5},
		{0.8, 0.1, 0.1},
		{0.05, 0.0, 0.15, 0.3, 0.5},
	}
	const draws = 200000

	for _, weights := range tables {
		names := make([]string, len(weights))
		for i := range names {
			names[i] = string(rune('a' + i))
		}
		table, err := NewTable(RoleRead, names, weights)
		require.NoError(t, err)

		r := rand.New(rand.NewSource(42))
		counts := make([]int, len(weights))
		for i := 0; i < draws; i++ {
			counts[table.AllocateWith(r).Index]++
		}
		for i, w := range weights {
			assert.InDelta(t, w, float64(counts[i])/draws, 0.01, "kind %d of %v", i, weights)
		}
	}
}

func TestAllocate_ZeroWeightNeverDrawn(t *testing.T) {
	table, err := NewTable(RoleRead, []string{"a", "b", "c"}, []float64{0.5, 0, 0.5})
	require.NoError(t, err)

	assert.Equal(t, "a", table.pick(0).Name)
	assert.Equal(t, "c", table.pick(0.5).Name)
	assert.Equal(t, "c", table.pick(0.9999999).Name)
}

func TestAllocate_ConcurrentUse(t *testing.T) {
	table, err := NewTable(RoleRead, []string{"a", "b"}, []float64{0.3, 0.7})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := table.Allocate()
				assert.Contains(t, []string{"a", "b"}, k.Name)
			}
		}()
	}
	wg.Wait()
}
