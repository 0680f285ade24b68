package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sandevgo/memchain/internal/codec"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, f *fixture, n int) []AppendResult {
	t.Helper()
	var out []AppendResult
	prev := ""
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Second)
		res, err := f.builder.Append(context.Background(), json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), prev)
		require.NoError(t, err)
		out = append(out, res)
		prev = res.CID
	}
	return out
}

func TestReplay_WalksToGenesis(t *testing.T) {
	f := newFixture(t)
	results := appendN(t, f, 4)

	links, err := NewReplayer(f.store, f.anchor).ReplayFromHead(context.Background(), f.signer.Address())
	require.NoError(t, err)
	require.Len(t, links, 4)

	for i, link := range links {
		want := results[len(results)-1-i]
		assert.JSONEq(t, string(want.Record.Payload), string(link.Record.Payload))
	}
	assert.True(t, links[3].Record.IsGenesis())
}

func TestReplay_NoPointer(t *testing.T) {
	f := newFixture(t)
	_, err := NewReplayer(f.store, f.anchor).ReplayFromHead(context.Background(), f.signer.Address())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReplay_WrongAgent(t *testing.T) {
	f := newFixture(t)
	results := appendN(t, f, 1)

	_, err := NewReplayer(f.store, f.anchor).Replay(context.Background(), results[0].CID, "0x0000000000000000000000000000000000000001")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestReplay_AddressCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	results := appendN(t, f, 2)

	lower := "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	links, err := NewReplayer(f.store, f.anchor).Replay(context.Background(), results[1].CID, lower)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestReplay_MissingLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := codec.CIDForBytes([]byte("never stored"))

	res, err := f.builder.Append(ctx, json.RawMessage(`{"n":1}`), missing)
	require.NoError(t, err)

	links, err := NewReplayer(f.store, f.anchor).Replay(ctx, res.CID, f.signer.Address())
	assert.ErrorIs(t, err, core.ErrBrokenChain)
	assert.Len(t, links, 1)
}

func TestReplay_TamperedContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := core.MemoryRecord{Payload: json.RawMessage(`{"n":1}`), Timestamp: epoch}
	require.NoError(t, signer.SignRecord(ctx, f.signer, &rec))
	rec.Payload = json.RawMessage(`{"n":2}`)
	data, err := EncodeRecord(rec)
	require.NoError(t, err)
	cid, err := f.store.Put(ctx, data, core.ObjectMeta{})
	require.NoError(t, err)

	_, err = NewReplayer(f.store, f.anchor).Replay(ctx, cid, f.signer.Address())
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

type mapStore map[string][]byte

func (m mapStore) Put(ctx context.Context, data []byte, meta core.ObjectMeta) (string, error) {
	return "", fmt.Errorf("read only")
}

func (m mapStore) Get(ctx context.Context, cid string) ([]byte, error) {
	data, ok := m[cid]
	if !ok {
		return nil, core.ErrNotFound
	}
	return data, nil
}

func TestReplay_Cycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// dag-pb CIDs address DAG nodes rather than raw bytes, so a store can
	// serve a record that links back to itself.
	self := codec.CIDFromDigest(codec.Sum([]byte("loop")))
	rec := core.MemoryRecord{Payload: json.RawMessage(`{"n":1}`), PreviousCID: self, Timestamp: epoch}
	require.NoError(t, signer.SignRecord(ctx, f.signer, &rec))
	data, err := EncodeRecord(rec)
	require.NoError(t, err)

	links, err := NewReplayer(mapStore{self: data}, f.anchor).Replay(ctx, self, f.signer.Address())
	assert.ErrorIs(t, err, core.ErrBrokenChain)
	assert.Len(t, links, 1)
}

func TestReplay_RawContentMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := core.MemoryRecord{Payload: json.RawMessage(`{"n":1}`), Timestamp: epoch}
	require.NoError(t, signer.SignRecord(ctx, f.signer, &rec))
	data, err := EncodeRecord(rec)
	require.NoError(t, err)
	cid := codec.CIDForBytes([]byte("something else"))

	_, err = NewReplayer(mapStore{cid: data}, f.anchor).Replay(ctx, cid, f.signer.Address())
	assert.ErrorIs(t, err, core.ErrBrokenChain)
}

func TestReplay_MaxDepth(t *testing.T) {
	f := newFixture(t)
	results := appendN(t, f, 3)

	links, err := NewReplayer(f.store, f.anchor, WithMaxDepth(2)).Replay(context.Background(), results[2].CID, f.signer.Address())
	assert.ErrorIs(t, err, core.ErrBrokenChain)
	assert.Len(t, links, 2)
}

func TestReplay_StoreIntegrityFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appendN(t, f, 1)

	f.store.GetErr = fmt.Errorf("blob x: %w", core.ErrIntegrity)
	_, err := NewReplayer(f.store, f.anchor).ReplayFromHead(ctx, f.signer.Address())
	assert.ErrorIs(t, err, core.ErrBrokenChain)
	assert.ErrorIs(t, err, core.ErrIntegrity)
}
