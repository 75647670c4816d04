package state

import (
	"subsync/native/subscription"
)

// SubscriptionGet loads the entitlement window of account.
func (m *Manager) SubscriptionGet(account [20]byte) (*subscription.Window, bool, error) {
	window := new(subscription.Window)
	ok, err := m.KVGet(SubscriptionKey(account), window)
	if err != nil || !ok {
		return nil, false, err
	}
	return window, true, nil
}

// SubscriptionPut stores the entitlement window of account.
func (m *Manager) SubscriptionPut(account [20]byte, window *subscription.Window) error {
	if window == nil {
		return m.KVDelete(SubscriptionKey(account))
	}
	return m.KVPut(SubscriptionKey(account), window)
}

// SubscriptionExtenderAllowed reports whether extender may credit time.
func (m *Manager) SubscriptionExtenderAllowed(extender [20]byte) (bool, error) {
	return m.flag(joinKey(subscriptionExtenderKey, extender[:]))
}

// SetSubscriptionExtender grants or revokes the extender role.
func (m *Manager) SetSubscriptionExtender(extender [20]byte, allowed bool) error {
	return m.setFlag(joinKey(subscriptionExtenderKey, extender[:]), allowed)
}

// MirrorGet loads the mirrored window of account.
func (m *Manager) MirrorGet(account [20]byte) (*subscription.Window, bool, error) {
	window := new(subscription.Window)
	ok, err := m.KVGet(MirrorKey(account), window)
	if err != nil || !ok {
		return nil, false, err
	}
	return window, true, nil
}

// MirrorPut stores the mirrored window of account.
func (m *Manager) MirrorPut(account [20]byte, window *subscription.Window) error {
	if window == nil {
		return m.KVDelete(MirrorKey(account))
	}
	return m.KVPut(MirrorKey(account), window)
}

func (m *Manager) flag(key []byte) (bool, error) {
	var set bool
	ok, err := m.KVGet(key, &set)
	if err != nil || !ok {
		return false, err
	}
	return set, nil
}

// setFlag stores true flags and deletes false ones so revoked entries leave
// no residue in the trie.
func (m *Manager) setFlag(key []byte, set bool) error {
	if !set {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}
