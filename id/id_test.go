package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/id"
)

func TestPrefixes(t *testing.T) {
	require.True(t, strings.HasPrefix(id.NewBucketID().String(), "bkt_"))
	require.True(t, strings.HasPrefix(id.NewPayoutID().String(), "po_"))
	require.True(t, strings.HasPrefix(id.NewEventID().String(), "evt_"))
}

func TestParseChecksPrefix(t *testing.T) {
	po := id.NewPayoutID()

	got, err := id.ParsePayoutID(po.String())
	require.NoError(t, err)
	require.Equal(t, po.String(), got.String())

	_, err = id.ParseBucketID(po.String())
	require.Error(t, err)
	_, err = id.ParseEventID(id.NewBucketID().String())
	require.Error(t, err)
	_, err = id.Parse("")
	require.Error(t, err)
}

func TestUnsetID(t *testing.T) {
	var i id.ID
	require.True(t, i.IsNil())
	require.Empty(t, i.String())

	v, err := i.Value()
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestScan(t *testing.T) {
	bkt := id.NewBucketID()

	var s id.ID
	require.NoError(t, s.Scan(bkt.String()))
	require.Equal(t, bkt.String(), s.String())

	var b id.ID
	require.NoError(t, b.Scan([]byte(bkt.String())))
	require.Equal(t, bkt.String(), b.String())

	require.NoError(t, s.Scan(nil))
	require.True(t, s.IsNil())

	require.Error(t, s.Scan(42))
}

func TestJSONField(t *testing.T) {
	type receipt struct {
		ID     id.PayoutID `json:"id"`
		Bucket id.BucketID `json:"bucket"`
	}
	in := receipt{ID: id.NewPayoutID()}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"bucket":""`)

	var out receipt
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in.ID.String(), out.ID.String())
	require.True(t, out.Bucket.IsNil())
}
