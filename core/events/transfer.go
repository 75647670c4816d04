package events

import (
	"math/big"

	"subsync/core/types"
)

const (
	// TypeTransfer is emitted for every fungible balance movement.
	TypeTransfer = "bank.transfer"
	// TypeApproval is emitted when an allowance is set.
	TypeApproval = "bank.approval"
	// TypeBadgeMinted is emitted when a badge credential is issued.
	TypeBadgeMinted = "badge.minted"
	// TypeBadgeBurned is emitted when a badge credential is destroyed.
	TypeBadgeBurned = "badge.burned"
)

type Transfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = formatAddress(e.From)
	attrs["to"] = formatAddress(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type Approval struct {
	Asset   string
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{Type: TypeApproval, Attributes: map[string]string{
		"asset":   normalizeAsset(e.Asset),
		"owner":   formatAddress(e.Owner),
		"spender": formatAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}

// BadgeMinted records a badge credential issued to Owner.
type BadgeMinted struct {
	Badge   [20]byte
	TokenID *big.Int
	Owner   [20]byte
}

func (BadgeMinted) EventType() string { return TypeBadgeMinted }

func (e BadgeMinted) Event() *types.Event {
	return &types.Event{Type: TypeBadgeMinted, Attributes: map[string]string{
		"badge":   formatAddress(e.Badge),
		"tokenId": formatAmount(e.TokenID),
		"owner":   formatAddress(e.Owner),
	}}
}

// BadgeBurned records a badge credential destroyed by Operator.
type BadgeBurned struct {
	Badge    [20]byte
	TokenID  *big.Int
	Owner    [20]byte
	Operator [20]byte
}

func (BadgeBurned) EventType() string { return TypeBadgeBurned }

func (e BadgeBurned) Event() *types.Event {
	return &types.Event{Type: TypeBadgeBurned, Attributes: map[string]string{
		"badge":    formatAddress(e.Badge),
		"tokenId":  formatAmount(e.TokenID),
		"owner":    formatAddress(e.Owner),
		"operator": formatAddress(e.Operator),
	}}
}
