package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taidopurason/distsys-miniproject-2/internal/testutil"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/client"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
	"go.uber.org/goleak"
)

func TestClient_SendOrderOverTheWire(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 3)
	defer func() {
		testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second)
	}()

	primary, ok := cluster.Controller.Get(cluster.PrimaryID)
	require.True(t, ok)

	c := client.New(cluster.PrimaryID, primary.LocalAddress())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	decision, votes, err := c.SendOrder(ctx, types.Attack)
	require.NoError(t, err)
	require.Equal(t, types.Attack, decision)
	require.Len(t, votes, 3)
}

func TestClient_SetPrimaryAfterReElection(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 3)
	defer func() {
		testutil.WaitThisOrTimeout(cluster.Off, 5*time.Second)
	}()

	require.NoError(t, cluster.Controller.RemoveNode("G0"))

	newPrimary, ok := cluster.Controller.Get("G1")
	require.True(t, ok)

	c := client.New("G0", "127.0.0.1:0")
	c.SetPrimary("G1", newPrimary.LocalAddress())

	id, addr := c.Primary()
	require.Equal(t, types.PeerId("G1"), id)
	require.Equal(t, newPrimary.LocalAddress(), addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	decision, _, err := c.SendOrder(ctx, types.Retreat)
	require.NoError(t, err)
	require.Equal(t, types.Retreat, decision)
}
