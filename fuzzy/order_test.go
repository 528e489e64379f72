// Package fuzzy drives a handful of client orders sequentially and then
// concurrently against a small cluster, checking it converges on a
// single decision either way.
package fuzzy

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taidopurason/distsys-miniproject-2/internal/testutil"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
	"go.uber.org/goleak"
)

var orders = []types.Order{types.Attack, types.Retreat, types.Attack, types.Attack, types.Retreat}

func Test_SequentialOrders(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 3)
	defer func() {
		if !testutil.WaitThisOrTimeout(cluster.Off, 30*time.Second) {
			t.Error("failed shutdown cluster")
			testutil.PrintStackTrace(t)
		}
	}()

	primary, _ := cluster.Controller.Get(cluster.PrimaryID)
	for _, order := range orders {
		log.Printf("************************** sending %s **************************", order)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		votes, err := primary.ClientOrder(ctx, order)
		cancel()
		require.NoError(t, err)
		require.Equal(t, order, types.Majority(valuesOf(votes)))
	}
}

func Test_ConcurrentOrders(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := testutil.NewGeneralCluster(t, 3)
	defer func() {
		if !testutil.WaitThisOrTimeout(cluster.Off, 30*time.Second) {
			t.Error("failed shutdown cluster")
			testutil.PrintStackTrace(t)
		}
	}()

	primary, _ := cluster.Controller.Get(cluster.PrimaryID)

	var group sync.WaitGroup
	for _, order := range orders {
		group.Add(1)
		go func(order types.Order) {
			defer group.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			votes, err := primary.ClientOrder(ctx, order)
			if err != nil {
				t.Errorf("failed ordering %s: %v", order, err)
				return
			}
			if decision := types.Majority(valuesOf(votes)); decision != order {
				t.Errorf("order %s: cluster decided %s instead", order, decision)
			}
		}(order)
	}

	if !testutil.WaitThisOrTimeout(group.Wait, 30*time.Second) {
		t.Errorf("not all orders finished within 30 seconds")
	}
}

func valuesOf(v types.Votes) []types.Order {
	out := make([]types.Order, 0, len(v))
	for _, o := range v {
		out = append(out, o)
	}
	return out
}
