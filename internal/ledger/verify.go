package ledger

import (
	"fmt"

	"releasegate/internal/security"
)

// VerifyChain re-computes each entry hash, link and signature to detect tampering
func (l *Ledger) VerifyChain() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.Index != i {
			return fmt.Errorf("index mismatch: expected %d got %d", i, e.Index)
		}

		h, err := e.ComputeHash()
		if err != nil {
			return fmt.Errorf("compute hash for index %d: %w", e.Index, err)
		}
		if h != e.Hash {
			return fmt.Errorf("hash mismatch at index %d", e.Index)
		}

		if i > 0 && e.PrevHash != l.entries[i-1].Hash {
			return fmt.Errorf("prev hash mismatch at index %d", e.Index)
		}

		ok, err := security.VerifySignatureFromHex(e.PubKey, []byte(e.Hash), e.Signature)
		if err != nil {
			return fmt.Errorf("decode signature at index %d: %w", e.Index, err)
		}
		if !ok {
			return fmt.Errorf("bad signature at index %d", e.Index)
		}
	}
	return nil
}
