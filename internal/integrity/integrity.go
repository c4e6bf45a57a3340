// Package integrity provides tamper-evident hashing for workspace documents
// and Merkle roots over append-only event logs. All functions are pure and
// deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const hashPrefix = "sha256:"

// ComputeDocumentHash returns the prefixed SHA-256 digest of a document's
// exact bytes. Leaf hashes use a 0x00 domain separator (RFC 6962) so they
// never collide with internal Merkle node hashes.
func ComputeDocumentHash(data []byte) string {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(data)
	return hashPrefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyDocumentHash reports whether data still hashes to stored.
func VerifyDocumentHash(stored string, data []byte) bool {
	if !strings.HasPrefix(stored, hashPrefix) {
		return false
	}
	return stored == ComputeDocumentHash(data)
}

// hashPair produces SHA-256(0x01 || a || b) as a prefixed hex string.
// The 0x01 prefix is a domain separator for internal Merkle tree nodes.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hashPrefix + hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the root.
// Leaves are taken in the order given; for event logs that is append order,
// so reordering lines changes the root.
// If leaves is empty, returns an empty string.
// If leaves has one element, the root is that element.
// Odd-length levels hash the last node with itself for structural binding.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}
