package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// For every well-formed frame, decoding what was just encoded returns
// an identical value.
func TestFrame_RoundTrip(t *testing.T) {
	frames := []types.Frame{
		{Sender: "G0", Action: types.ActionOrder, Value: string(types.Attack)},
		{Sender: "G1", Action: types.ActionClientOrder, Value: string(types.Retreat)},
		{Sender: "G2", Action: types.ActionOrder, Value: string(types.Undecided)},
		{Sender: types.Client, Action: types.ActionClientOrder, Value: string(types.Attack)},
	}

	for _, f := range frames {
		data, err := f.Marshal()
		require.NoError(t, err)

		got, err := types.UnmarshalFrame(data)
		require.NoError(t, err)
		require.Equal(t, f, got)
	}
}

func TestFrame_ResponseCarriesVotes(t *testing.T) {
	votes := types.Votes{"G0": types.Attack, "G1": types.Retreat, "G2": types.Undecided}
	encoded, err := types.EncodeVotes(votes)
	require.NoError(t, err)

	frame := types.Frame{Sender: "G0", Action: types.ActionResponse, Value: encoded}
	data, err := frame.Marshal()
	require.NoError(t, err)

	got, err := types.UnmarshalFrame(data)
	require.NoError(t, err)

	decoded, err := types.DecodeVotes(got.Value)
	require.NoError(t, err)
	require.Equal(t, votes, decoded)
}

func TestUnmarshalFrame_Malformed(t *testing.T) {
	_, err := types.UnmarshalFrame([]byte("not json"))
	require.ErrorIs(t, err, types.ErrMalformedFrame)
}

func TestDecodeOrder_Invalid(t *testing.T) {
	_, err := types.DecodeOrder("surrender")
	require.ErrorIs(t, err, types.ErrMalformedFrame)
}
