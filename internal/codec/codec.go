// Package codec converts between the 32-byte BLAKE3 digest anchored on-chain
// and the CID under which the content store serves the record.
//
// Records uploaded by the content store are addressed by CIDv1 with the
// dag-pb codec and a BLAKE3-256 multihash. The digest anchored on-chain is
// the raw multihash digest, so CIDFromDigest always rebuilds that exact CID
// form and DigestFromCID accepts any CID carrying a BLAKE3-256 multihash.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

const DigestSize = 32

var (
	ErrInvalidCID    = errors.New("codec: invalid cid")
	ErrInvalidDigest = errors.New("codec: invalid digest")
)

// Digest is a BLAKE3-256 hash.
type Digest [DigestSize]byte

// IsZero reports whether d is all zeros, which the anchor contract returns
// for agents that never anchored.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Hex returns the 0x-prefixed lower-case hex form used by the ledger.
func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}

// ParseDigest accepts hex with or without a 0x prefix.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidDigest, DigestSize, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// Sum hashes data with BLAKE3-256.
func Sum(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// DigestFromCID extracts the BLAKE3 digest carried by a CID.
func DigestFromCID(s string) (Digest, error) {
	var d Digest

	c, err := cid.Decode(s)
	if err != nil {
		return d, fmt.Errorf("%w: %q: %v", ErrInvalidCID, s, err)
	}

	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return d, fmt.Errorf("%w: %q: %v", ErrInvalidCID, s, err)
	}
	if decoded.Code != mh.BLAKE3 {
		return d, fmt.Errorf("%w: %q uses multihash %s, want blake3", ErrInvalidCID, s, mh.Codes[decoded.Code])
	}
	if len(decoded.Digest) != DigestSize {
		return d, fmt.Errorf("%w: %q digest is %d bytes", ErrInvalidCID, s, len(decoded.Digest))
	}

	copy(d[:], decoded.Digest)
	return d, nil
}

// CIDFromDigest builds the canonical dag-pb CIDv1 string for a digest.
func CIDFromDigest(d Digest) string {
	return newCID(cid.DagProtobuf, d).String()
}

// CIDForBytes content-addresses raw bytes without any DAG framing. Used by
// the local blob store; DigestFromCID accepts these CIDs too.
func CIDForBytes(data []byte) string {
	return newCID(cid.Raw, Sum(data)).String()
}

func newCID(codecType uint64, d Digest) cid.Cid {
	hash, err := mh.Encode(d[:], mh.BLAKE3)
	if err != nil {
		// Encode only fails for unknown codes or oversized digests.
		panic("codec: blake3 multihash encode: " + err.Error())
	}
	return cid.NewCidV1(codecType, hash)
}

// IsRawCID reports whether s addresses bytes directly, so that
// Sum(content) must equal its digest.
func IsRawCID(s string) bool {
	c, err := cid.Decode(s)
	return err == nil && c.Type() == cid.Raw
}
