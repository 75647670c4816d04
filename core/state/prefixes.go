package state

import (
	"encoding/binary"
	"math/big"
	"strings"
)

var (
	subscriptionPrefix      = []byte("subscription/window/")
	subscriptionExtenderKey = []byte("subscription/extender/")

	pricingPricePrefix    = []byte("pricing/price/")
	pricingFactorPrefix   = []byte("pricing/factor/")
	pricingDiscountPrefix = []byte("pricing/discount/")
	pricingSnapshotPrefix = []byte("pricing/snapshot/")
	pricingBadgePrefix    = []byte("pricing/badge-credit/")
	voucherSignerKey      = []byte("pricing/voucher/signer")
	voucherNoncePrefix    = []byte("pricing/voucher/nonce/")

	syncRootKey         = []byte("sync/root")
	syncWriterPrefix    = []byte("sync/writer/")
	syncDestPrefix      = []byte("sync/destination/")
	syncDestListKey     = []byte("sync/destinations")
	syncGasLimitKey     = []byte("sync/gas-limit")
	receiverConfigKey   = []byte("receiver/config")
	receiverLatestKey   = []byte("receiver/latest")
	receiverHistoryKey  = []byte("receiver/history")
	receiverKnownPrefix = []byte("receiver/known/")
	mirrorPrefix        = []byte("mirror/window/")

	allowancePrefix    = []byte("bank/allowance/")
	badgeOwnerPrefix   = []byte("bank/badge/owner/")
	badgeBalancePrefix = []byte("bank/badge/balance/")
	badgeBurnerPrefix  = []byte("bank/badge/burner/")

	pausePrefix = []byte("pause/")
)

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, p...)
	}
	return buf
}

func symbolBytes(symbol string) []byte {
	return []byte(strings.ToUpper(strings.TrimSpace(symbol)))
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func uint16Bytes(v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return buf[:]
}

// SubscriptionKey locates the entitlement window of an account.
func SubscriptionKey(account [20]byte) []byte { return joinKey(subscriptionPrefix, account[:]) }

// MirrorKey locates the mirrored window of an account.
func MirrorKey(account [20]byte) []byte { return joinKey(mirrorPrefix, account[:]) }

func tokenIDBytes(id *big.Int) []byte {
	if id == nil {
		return nil
	}
	return id.Bytes()
}
