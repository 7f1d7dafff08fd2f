package longmessage

import (
	"crypto/md5" //nolint:gosec // Digest format fixed by the upload protocol
	"encoding/hex"
	"hash"
)

// Aggregator accumulates one in-flight transfer.
// It is not safe for concurrent use; the Handler serialises access.
type Aggregator struct {
	expected [DigestSize]byte
	data     []byte
	hash     hash.Hash
}

// NewAggregator starts a transfer that must hash to expected.
func NewAggregator(expected [DigestSize]byte) *Aggregator {
	return &Aggregator{
		expected: expected,
		hash:     md5.New(), //nolint:gosec // Integrity check, not security
	}
}

// Append adds a chunk.
func (a *Aggregator) Append(chunk []byte) {
	a.data = append(a.data, chunk...)
	a.hash.Write(chunk) //nolint:errcheck // hash.Hash.Write never fails
}

// Finalize reports whether everything appended so far matches the
// expected digest. Chunk boundaries do not matter.
func (a *Aggregator) Finalize() bool {
	var sum [DigestSize]byte
	copy(sum[:], a.hash.Sum(nil))
	return sum == a.expected
}

// Data returns the accumulated bytes.
func (a *Aggregator) Data() []byte {
	return a.data
}

// Len returns the number of bytes received.
func (a *Aggregator) Len() int {
	return len(a.data)
}

// Expected returns the digest announced at INIT_TRANSFER.
func (a *Aggregator) Expected() [DigestSize]byte {
	return a.expected
}

// ExpectedHex returns the expected digest as lowercase hex.
func (a *Aggregator) ExpectedHex() string {
	return hex.EncodeToString(a.expected[:])
}
