package events

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct{ got []Event }

func (r *recorder) Emit(evt Event) { r.got = append(r.got, evt) }

func TestBufferFlushAndDiscard(t *testing.T) {
	var buf Buffer
	buf.Emit(SubscriptionExtended{Duration: 10})
	buf.Emit(SyncLeafSaved{IsNew: true})
	require.Equal(t, []string{TypeSubscriptionExtended, TypeSyncAccountAdded}, buf.Types())

	sink := &recorder{}
	flushed := buf.Flush(sink)
	require.Len(t, flushed, 2)
	require.Len(t, sink.got, 2)
	require.Empty(t, buf.Events())

	buf.Emit(SubscriptionExtended{})
	buf.Discard()
	require.Empty(t, buf.Events())
}

func TestRenderedAttributes(t *testing.T) {
	var account [20]byte
	account[19] = 0x01
	evt := SubscriptionPurchased{
		Recipient: account,
		Token:     " usdc ",
		Duration:  30,
		Cost:      big.NewInt(5),
	}.Event()
	require.Equal(t, TypeSubscriptionPurchased, evt.Type)
	require.Equal(t, "USDC", evt.Attributes["token"])
	require.Equal(t, "5", evt.Attributes["cost"])
	require.NotContains(t, evt.Attributes, "discountBadge")

	updated := SyncLeafSaved{Account: account}
	require.Equal(t, TypeSyncAccountUpdated, updated.EventType())

	clone := evt.Clone()
	clone.Attributes["token"] = "X"
	require.Equal(t, "USDC", evt.Attributes["token"])
}
