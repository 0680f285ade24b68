package codec

import (
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"type":"note"}`),
		[]byte(""),
		[]byte("agent memory record with a longer body"),
	}

	for _, p := range payloads {
		stored := CIDForBytes(p)
		d, err := DigestFromCID(stored)
		require.NoError(t, err)
		assert.Equal(t, Sum(p), d)

		again, err := DigestFromCID(CIDFromDigest(d))
		require.NoError(t, err)
		assert.Equal(t, d, again, "digestFromCid(cidFromDigest(d)) must equal d")
	}
}

func TestCIDFromDigest_IsDagPB(t *testing.T) {
	d := Sum([]byte("x"))
	c, err := cid.Decode(CIDFromDigest(d))
	require.NoError(t, err)
	assert.Equal(t, uint64(cid.DagProtobuf), c.Type())
	assert.Equal(t, uint64(1), c.Version())
}

func TestDigestFromCID_Errors(t *testing.T) {
	sha, err := mh.Sum([]byte("x"), mh.SHA2_256, -1)
	require.NoError(t, err)
	shaCID := cid.NewCidV1(cid.Raw, sha).String()

	tests := []struct {
		name  string
		input string
	}{
		{name: "garbage", input: "not-a-cid"},
		{name: "empty", input: ""},
		{name: "sha256 multihash", input: shaCID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DigestFromCID(tt.input)
			assert.ErrorIs(t, err, ErrInvalidCID)
		})
	}
}

func TestParseDigest(t *testing.T) {
	d := Sum([]byte("record"))

	parsed, err := ParseDigest(d.Hex())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	parsed, err = ParseDigest(d.Hex()[2:])
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = ParseDigest("0x1234")
	assert.ErrorIs(t, err, ErrInvalidDigest)

	_, err = ParseDigest("0xzz")
	assert.ErrorIs(t, err, ErrInvalidDigest)
}

func TestDigest_IsZero(t *testing.T) {
	assert.True(t, Digest{}.IsZero())
	assert.False(t, Sum(nil).IsZero())
}

func TestIsRawCID(t *testing.T) {
	data := []byte(`{"x":1}`)

	assert.True(t, IsRawCID(CIDForBytes(data)))
	assert.False(t, IsRawCID(CIDFromDigest(Sum(data))))
	assert.False(t, IsRawCID("not-a-cid"))
}
