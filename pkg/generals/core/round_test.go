package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taidopurason/distsys-miniproject-2/internal/testutil"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
	"go.uber.org/goleak"
)

// With zero faulty peers, every peer's majority report equals the
// client's order, and the aggregated decision equals it too.
func TestRound_HonestAgreement(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 3)
	defer func() {
		if !testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second) {
			t.Fatal("cluster failed to shut down")
		}
	}()

	primary, ok := cluster.Controller.Get(cluster.PrimaryID)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	votes, err := primary.ClientOrder(ctx, types.Attack)
	require.NoError(t, err)
	require.Len(t, votes, 3)
	for id, v := range votes {
		require.Equalf(t, types.Attack, v, "peer %s voted %s", id, v)
	}
}

// Three honest peers: an attack order decides attack with all three
// voting attack.
func TestRound_ThreeHonestPeers(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 3)
	defer func() {
		testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second)
	}()

	primary, _ := cluster.Controller.Get(cluster.PrimaryID)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	votes, err := primary.ClientOrder(ctx, types.Attack)
	require.NoError(t, err)
	require.Equal(t, types.Votes{"G0": types.Attack, "G1": types.Attack, "G2": types.Attack}, votes)
	require.Equal(t, types.Attack, types.Majority(valuesOf(votes)))
}

// Four peers, one faulty secondary not in the primary role: the client
// decision equals the primary's input value regardless of the faulty
// secondary's randomized forwarding.
func TestRound_TraitorToleranceSecondaryFaulty(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 4)
	defer func() {
		testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second)
	}()

	faulty, ok := cluster.Controller.Get("G2")
	require.True(t, ok)
	faulty.State().SetFaulty(true)

	primary, _ := cluster.Controller.Get(cluster.PrimaryID)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	votes, err := primary.ClientOrder(ctx, types.Retreat)
	require.NoError(t, err)

	decision := types.Majority(valuesOf(votes))
	require.Equal(t, types.Retreat, decision)

	// Honest secondaries must agree with the primary's input; the faulty
	// one's vote is unconstrained.
	require.Equal(t, types.Retreat, votes["G1"])
	require.Equal(t, types.Retreat, votes["G3"])
}

// A single-peer cluster decides immediately on its own input.
func TestRound_SingleNodeCluster(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 1)
	defer func() {
		testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second)
	}()

	primary, _ := cluster.Controller.Get(cluster.PrimaryID)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	votes, err := primary.ClientOrder(ctx, types.Attack)
	require.NoError(t, err)
	require.Equal(t, types.Votes{"G0": types.Attack}, votes)
}

// Two honest peers agree on the shared input.
func TestRound_TwoHonestPeersAgree(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 2)
	defer func() {
		testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second)
	}()

	primary, _ := cluster.Controller.Get(cluster.PrimaryID)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	votes, err := primary.ClientOrder(ctx, types.Attack)
	require.NoError(t, err)
	require.Equal(t, types.Votes{"G0": types.Attack, "G1": types.Attack}, votes)
	require.Equal(t, types.Attack, types.Majority(valuesOf(votes)))
}

// A non-primary peer asked for a client order reports ErrNotPrimary
// instead of driving a round.
func TestRound_ClientOrderRejectedByNonPrimary(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 3)
	defer func() {
		testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second)
	}()

	secondary, ok := cluster.Controller.Get("G1")
	require.True(t, ok)

	_, err := secondary.ClientOrder(context.Background(), types.Attack)
	require.ErrorIs(t, err, types.ErrNotPrimary)
}

// A peer that stops responding mid-round (its transport is closed
// without going through RemoveNode, so the primary still expects its
// vote) is recorded as Undecided once the round's context deadline
// expires, rather than being silently dropped from the vote table.
func TestRound_TimeoutBackfillsUndecided(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 3)
	defer func() {
		testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second)
	}()

	stalled, ok := cluster.Controller.Get("G1")
	require.True(t, ok)
	require.NoError(t, stalled.Stop())

	primary, _ := cluster.Controller.Get(cluster.PrimaryID)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	votes, err := primary.ClientOrder(ctx, types.Attack)
	require.NoError(t, err)
	require.Len(t, votes, 3)
	require.Equal(t, types.Undecided, votes["G1"])
	require.Equal(t, types.Attack, votes["G0"])
}

func valuesOf(v types.Votes) []types.Order {
	out := make([]types.Order, 0, len(v))
	for _, o := range v {
		out = append(out, o)
	}
	return out
}
