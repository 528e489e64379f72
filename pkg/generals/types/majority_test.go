package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// An empty vote set and an exact tie both resolve to undecided; any
// clear plurality resolves to that value.
func TestMajority(t *testing.T) {
	cases := []struct {
		name   string
		values []types.Order
		want   types.Order
	}{
		{"empty", nil, types.Undecided},
		{"two-way-tie", []types.Order{types.Attack, types.Retreat}, types.Undecided},
		{"clear-plurality", []types.Order{types.Attack, types.Attack, types.Retreat}, types.Attack},
		{"single-vote", []types.Order{types.Retreat}, types.Retreat},
		{"three-way-tie-with-undecided", []types.Order{types.Attack, types.Retreat, types.Undecided}, types.Undecided},
		{"plurality-with-prior-undecided", []types.Order{types.Attack, types.Attack, types.Undecided}, types.Attack},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, types.Majority(tc.values))
		})
	}
}
