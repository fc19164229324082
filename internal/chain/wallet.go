package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds private keys imported at startup plus the set of accounts the
// connected node can sign for. It decides, per address, whether a send can be
// signed locally, delegated to the node, or not at all.
type Wallet struct {
	mu        sync.RWMutex
	keys      map[common.Address]*ecdsa.PrivateKey
	keyOrder  []common.Address
	node      map[common.Address]struct{}
	nodeOrder []common.Address
}

// NewWallet imports the given hex-encoded private keys. Keys may carry a 0x
// prefix. Import failures abort startup: a half-provisioned wallet would
// surface later as confusing sender-unavailable errors.
func NewWallet(hexKeys []string) (*Wallet, error) {
	w := &Wallet{
		keys: make(map[common.Address]*ecdsa.PrivateKey, len(hexKeys)),
		node: make(map[common.Address]struct{}),
	}
	for i, raw := range hexKeys {
		trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
		if trimmed == "" {
			continue
		}
		key, err := crypto.HexToECDSA(trimmed)
		if err != nil {
			return nil, fmt.Errorf("import private key %d: %w", i, err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := w.keys[addr]; !dup {
			w.keyOrder = append(w.keyOrder, addr)
		}
		w.keys[addr] = key
	}
	return w, nil
}

// SetNodeAccounts records the unlocked accounts reported by the node.
func (w *Wallet) SetNodeAccounts(accounts []common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.node = make(map[common.Address]struct{}, len(accounts))
	w.nodeOrder = append([]common.Address(nil), accounts...)
	for _, addr := range accounts {
		w.node[addr] = struct{}{}
	}
}

// Key returns the imported private key for addr, if any.
func (w *Wallet) Key(addr common.Address) (*ecdsa.PrivateKey, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	key, ok := w.keys[addr]
	return key, ok
}

// NodeHeld reports whether the node can sign for addr.
func (w *Wallet) NodeHeld(addr common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.node[addr]
	return ok
}

// CanSign reports whether a send from addr is possible at all.
func (w *Wallet) CanSign(addr common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.keys[addr]; ok {
		return true
	}
	_, ok := w.node[addr]
	return ok
}

// Addresses lists the locally imported signer addresses in import order.
func (w *Wallet) Addresses() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]common.Address(nil), w.keyOrder...)
}

// NodeAddresses lists node-held accounts in the order the node reported them.
func (w *Wallet) NodeAddresses() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]common.Address(nil), w.nodeOrder...)
}
