package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// BatchFingerprint computes a deterministic digest over an AppendRequest's
// client-supplied fields only — tenant, aggregate, expected nonce, and each
// event's type/id/data/metadata — with no server-assigned field (nonce,
// recorded time) folded in. Two Append calls with the same idempotency_key
// are only treated as the same logical write if their fingerprints match;
// a mismatch means the key was reused for a different batch, which is a
// client bug the engine must reject rather than silently replay.
func BatchFingerprint(req *AppendRequest) string {
	h := sha256.New()
	writeString(h, req.TenantID)
	writeString(h, req.AggregateID)
	writeString(h, req.AggregateType)
	writeUint64(h, req.ExpectedAggregateNonce)
	writeUint64(h, uint64(len(req.Events)))
	for _, e := range req.Events {
		writeString(h, e.EventType)
		writeString(h, e.EventID)
		writeString(h, string(e.Data))
		writeUint64(h, uint64(len(e.Metadata)))
		for _, k := range sortedKeys(e.Metadata) {
			writeString(h, k)
			writeString(h, e.Metadata[k])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeString(h interface{ Write([]byte) (int, error) }, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion sort is fine here: metadata maps are small (a handful of keys)
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
