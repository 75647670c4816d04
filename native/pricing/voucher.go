package pricing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"subsync/core/events"
)

type voucherState interface {
	VoucherSigner() ([20]byte, bool, error)
	SetVoucherSigner(signer [20]byte) error
	VoucherNonce(signer [20]byte) (uint64, error)
	SetVoucherNonce(signer [20]byte, nonce uint64) error
}

// Default domain name and version used when none is configured.
const (
	DefaultVoucherName    = "subsync"
	DefaultVoucherVersion = "1"
)

// Domain separates vouchers of one deployment from every other.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract [20]byte
}

var voucherTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Voucher": {
		{Name: "sender", Type: "address"},
		{Name: "duration", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// VoucherDigest returns the EIP-712 hash a signer signs to authorize sender
// to redeem duration seconds at nonce.
func VoucherDigest(domain Domain, sender [20]byte, duration, nonce uint64) ([]byte, error) {
	chainID := domain.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	typed := apitypes.TypedData{
		Types:       voucherTypes,
		PrimaryType: "Voucher",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: common.Address(domain.VerifyingContract).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"sender":   common.Address(sender).Hex(),
			"duration": new(big.Int).SetUint64(duration),
			"nonce":    new(big.Int).SetUint64(nonce),
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("pricing: voucher digest: %w", err)
	}
	return hash, nil
}

// SignVoucher produces the 65-byte signature an issuer hands to sender.
func SignVoucher(key *ecdsa.PrivateKey, domain Domain, sender [20]byte, duration, nonce uint64) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("pricing: signing key required")
	}
	digest, err := VoucherDigest(domain, sender, duration, nonce)
	if err != nil {
		return nil, err
	}
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func recoverSigner(digest, signature []byte) ([20]byte, error) {
	if len(signature) != 65 {
		return [20]byte{}, ErrInvalidSignature
	}
	sig := append([]byte(nil), signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !ethcrypto.ValidateSignatureValues(sig[64], r, s, true) {
		return [20]byte{}, ErrInvalidSignature
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VoucherEngine redeems vouchers signed off-chain by the configured signer.
// Each signer has one nonce; a redeemed voucher consumes it whatever its
// duration or recipient.
type VoucherEngine struct {
	module
	state  voucherState
	domain Domain
}

// NewVoucherEngine creates a voucher strategy.
func NewVoucherEngine() *VoucherEngine {
	return &VoucherEngine{
		module: newModule(),
		domain: Domain{Name: DefaultVoucherName, Version: DefaultVoucherVersion, ChainID: new(big.Int)},
	}
}

// SetState configures the state backend used by the engine.
func (e *VoucherEngine) SetState(state voucherState) { e.state = state }

// SetDomain configures the typed data domain. Empty fields take defaults and
// a zero verifying contract resolves to the engine address.
func (e *VoucherEngine) SetDomain(domain Domain) {
	if domain.Name == "" {
		domain.Name = DefaultVoucherName
	}
	if domain.Version == "" {
		domain.Version = DefaultVoucherVersion
	}
	if domain.ChainID != nil {
		domain.ChainID = new(big.Int).Set(domain.ChainID)
	} else {
		domain.ChainID = new(big.Int)
	}
	e.domain = domain
}

// Domain returns the effective typed data domain.
func (e *VoucherEngine) Domain() Domain {
	d := e.domain
	if d.VerifyingContract == ([20]byte{}) {
		d.VerifyingContract = e.address
	}
	return d
}

// Signer returns the authorized signer.
func (e *VoucherEngine) Signer() ([20]byte, bool, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, false, ErrNilState
	}
	return e.state.VoucherSigner()
}

// Nonce returns the next nonce expected from signer.
func (e *VoucherEngine) Nonce(signer [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return e.state.VoucherNonce(signer)
}

// SetSigner rotates the authorized voucher signer.
func (e *VoucherEngine) SetSigner(caller, signer [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if signer == ([20]byte{}) {
		return ErrZeroAddress
	}
	previous, _, err := e.state.VoucherSigner()
	if err != nil {
		return err
	}
	if err := e.state.SetVoucherSigner(signer); err != nil {
		return err
	}
	e.emit(events.VoucherSignerUpdated{Previous: previous, Signer: signer})
	return nil
}

// BuySubscriptionWithVoucher verifies a voucher issued to sender at the
// signer's current nonce and credits recipient with duration.
func (e *VoucherEngine) BuySubscriptionWithVoucher(sender, recipient [20]byte, duration uint64, signature []byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.guard(); err != nil {
		return err
	}
	if recipient == ([20]byte{}) {
		return ErrZeroAddress
	}
	if duration == 0 {
		return ErrZeroDuration
	}
	signer, ok, err := e.state.VoucherSigner()
	if err != nil {
		return err
	}
	if !ok || signer == ([20]byte{}) {
		return ErrSignerNotSet
	}
	nonce, err := e.state.VoucherNonce(signer)
	if err != nil {
		return err
	}
	digest, err := VoucherDigest(e.Domain(), sender, duration, nonce)
	if err != nil {
		return err
	}
	recovered, err := recoverSigner(digest, signature)
	if err != nil {
		return err
	}
	if recovered != signer {
		return ErrInvalidSignature
	}
	if err := e.state.SetVoucherNonce(signer, nonce+1); err != nil {
		return err
	}
	if err := e.extend(recipient, duration); err != nil {
		return err
	}
	e.emit(events.VoucherRedeemed{
		Signer:    signer,
		Sender:    sender,
		Recipient: recipient,
		Duration:  duration,
		Nonce:     nonce,
	})
	return nil
}
