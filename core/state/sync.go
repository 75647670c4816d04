package state

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"subsync/native/receiver"
)

// SyncRoot returns the synchronizer's tree root, the empty root by default.
func (m *Manager) SyncRoot() (common.Hash, error) {
	var root common.Hash
	if _, err := m.KVGet(syncRootKey, &root); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}

// SetSyncRoot stores the synchronizer's tree root.
func (m *Manager) SetSyncRoot(root common.Hash) error {
	return m.KVPut(syncRootKey, root)
}

// SyncWriterAllowed reports whether writer may commit windows.
func (m *Manager) SyncWriterAllowed(writer [20]byte) (bool, error) {
	return m.flag(joinKey(syncWriterPrefix, writer[:]))
}

// SetSyncWriter grants or revokes the writer role.
func (m *Manager) SetSyncWriter(writer [20]byte, allowed bool) error {
	return m.setFlag(joinKey(syncWriterPrefix, writer[:]), allowed)
}

// SyncDestination returns the receiver configured for chainID.
func (m *Manager) SyncDestination(chainID uint16) ([32]byte, bool, error) {
	var addr [32]byte
	ok, err := m.KVGet(joinKey(syncDestPrefix, uint16Bytes(chainID)), &addr)
	if err != nil || !ok {
		return [32]byte{}, false, err
	}
	return addr, true, nil
}

// SetSyncDestination stores the receiver of chainID and indexes the chain.
func (m *Manager) SetSyncDestination(chainID uint16, address [32]byte) error {
	if err := m.KVPut(joinKey(syncDestPrefix, uint16Bytes(chainID)), address); err != nil {
		return err
	}
	return m.KVAppend(syncDestListKey, uint16Bytes(chainID))
}

// DeleteSyncDestination removes the receiver of chainID.
func (m *Manager) DeleteSyncDestination(chainID uint16) error {
	if err := m.KVDelete(joinKey(syncDestPrefix, uint16Bytes(chainID))); err != nil {
		return err
	}
	return m.KVRemove(syncDestListKey, uint16Bytes(chainID))
}

// SyncDestinations lists the configured chains in ascending order.
func (m *Manager) SyncDestinations() ([]uint16, error) {
	var raw [][]byte
	if err := m.KVGetList(syncDestListKey, &raw); err != nil {
		return nil, err
	}
	out := make([]uint16, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 2 {
			return nil, fmt.Errorf("state: malformed destination index entry %x", entry)
		}
		out = append(out, binary.BigEndian.Uint16(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// SyncGasLimit returns the configured destination gas budget.
func (m *Manager) SyncGasLimit() (uint64, bool, error) {
	var limit uint64
	ok, err := m.KVGet(syncGasLimitKey, &limit)
	if err != nil || !ok {
		return 0, false, err
	}
	return limit, true, nil
}

// SetSyncGasLimit stores the destination gas budget.
func (m *Manager) SetSyncGasLimit(limit uint64) error {
	return m.KVPut(syncGasLimitKey, limit)
}

// ReceiverConfig returns the trusted relay and source.
func (m *Manager) ReceiverConfig() (*receiver.Config, bool, error) {
	cfg := new(receiver.Config)
	ok, err := m.KVGet(receiverConfigKey, cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

// SetReceiverConfig stores the trusted relay and source.
func (m *Manager) SetReceiverConfig(cfg *receiver.Config) error {
	if cfg == nil {
		return m.KVDelete(receiverConfigKey)
	}
	return m.KVPut(receiverConfigKey, cfg)
}

// ReceiverCheckpoint returns the last accepted root.
func (m *Manager) ReceiverCheckpoint() (*receiver.Checkpoint, bool, error) {
	cp := new(receiver.Checkpoint)
	ok, err := m.KVGet(receiverLatestKey, cp)
	if err != nil || !ok {
		return nil, false, err
	}
	return cp, true, nil
}

// SetReceiverCheckpoint stores the last accepted root.
func (m *Manager) SetReceiverCheckpoint(cp *receiver.Checkpoint) error {
	if cp == nil {
		return m.KVDelete(receiverLatestKey)
	}
	return m.KVPut(receiverLatestKey, cp)
}

// ReceiverRootHistory returns the retained roots, oldest first.
func (m *Manager) ReceiverRootHistory() ([]common.Hash, error) {
	var roots []common.Hash
	if err := m.KVGetList(receiverHistoryKey, &roots); err != nil {
		return nil, err
	}
	return roots, nil
}

// SetReceiverRootHistory replaces the retained roots.
func (m *Manager) SetReceiverRootHistory(roots []common.Hash) error {
	if len(roots) == 0 {
		return m.KVDelete(receiverHistoryKey)
	}
	return m.KVPut(receiverHistoryKey, roots)
}

// ReceiverRootKnown reports whether root is in the retained history.
func (m *Manager) ReceiverRootKnown(root common.Hash) (bool, error) {
	return m.flag(joinKey(receiverKnownPrefix, root[:]))
}

// SetReceiverRootKnown marks or clears root as retained.
func (m *Manager) SetReceiverRootKnown(root common.Hash, known bool) error {
	return m.setFlag(joinKey(receiverKnownPrefix, root[:]), known)
}
