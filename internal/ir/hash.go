package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// snapshot format to change without old hashes colliding with new ones.
const (
	DomainSnapshot = "quill/snapshot/v1"
	DomainTrace    = "quill/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null byte
// keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the hex SHA-256 of v's canonical form under domain.
func Hash(domain string, v Value) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// SnapshotHash fingerprints a node-tree snapshot.
func SnapshotHash(snapshot Value) (string, error) {
	return Hash(DomainSnapshot, snapshot)
}

// TraceHash fingerprints a scenario's event trace.
func TraceHash(trace Value) (string, error) {
	return Hash(DomainTrace, trace)
}
