package ipfs

import (
	"context"
	"crypto/sha256"
	"math/big"
	"strings"
	"sync"

	apperrors "propchain/internal/common/errors"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// MemoryStore keeps documents in process. CIDs are real CIDv0 values
// (base58 sha2-256 multihash of the raw bytes).
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[string][]byte
	gatewayBase string
}

func NewMemoryStore(gatewayURL string) *MemoryStore {
	return &MemoryStore{
		docs:        make(map[string][]byte),
		gatewayBase: strings.TrimRight(gatewayURL, "/"),
	}
}

func (m *MemoryStore) RawURL(cid string) string {
	return m.gatewayBase + "/ipfs/" + cid
}

func (m *MemoryStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[cid]
	if !ok {
		return nil, apperrors.Wrap(ErrNotFound, apperrors.ErrCodeNotFound, "Metadata not found").
			WithDetail("cid", cid)
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (m *MemoryStore) Publish(ctx context.Context, data []byte) (string, error) {
	cid := CIDv0(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[cid] = append([]byte(nil), data...)
	return cid, nil
}

// Put stores data under an arbitrary cid, used for seeding broken documents.
func (m *MemoryStore) Put(cid string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[cid] = append([]byte(nil), data...)
}

// CIDv0 returns the version 0 content identifier of data.
func CIDv0(data []byte) string {
	sum := sha256.Sum256(data)
	// multihash: sha2-256 code, 32 byte digest
	return base58Encode(append([]byte{0x12, 0x20}, sum[:]...))
}

func base58Encode(b []byte) string {
	n := new(big.Int).SetBytes(b)
	radix := big.NewInt(58)
	mod := new(big.Int)

	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, c := range b {
		if c != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
