package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Order signing domain.
const (
	OrderDomainName    = "Polymarket Orders"
	OrderDomainVersion = "1"
	PolygonChainID     = 137
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Order(address maker,string marketId,uint8 side,string price,string amount,uint256 nonce)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(address maker,string marketId,uint8 side,string price,string amount,uint256 nonce)"),
	)
)

// Order sides as encoded in the signed struct.
const (
	SideBuy  = 0
	SideSell = 1
)

// OrderPayload is the signed part of a Polymarket order. Price and Amount
// are the exact decimal strings sent on the wire.
type OrderPayload struct {
	Maker    string
	MarketID string
	Side     int
	Price    string
	Amount   string
	Nonce    string
}

// Signer signs Polymarket orders with the wallet key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (137 for Polygon mainnet, 80002 for Amoy testnet).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domainSep:  domainSeparator(OrderDomainName, OrderDomainVersion, chainID),
	}, nil
}

// Address returns the wallet address derived from the private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder returns the hex-encoded 65-byte EIP-712 signature of order.
func (s *Signer) SignOrder(order OrderPayload) (string, error) {
	digest, err := s.orderDigest(order)
	if err != nil {
		return "", err
	}

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func (s *Signer) orderDigest(o OrderPayload) ([]byte, error) {
	if o.Side != SideBuy && o.Side != SideSell {
		return nil, fmt.Errorf("crypto/signer: invalid side %d", o.Side)
	}
	if !common.IsHexAddress(o.Maker) {
		return nil, fmt.Errorf("crypto/signer: invalid maker %q", o.Maker)
	}
	nonce, ok := new(big.Int).SetString(o.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid nonce %q", o.Nonce)
	}

	structHash := ethcrypto.Keccak256(
		orderTypeHash,
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		ethcrypto.Keccak256([]byte(o.MarketID)),
		common.LeftPadBytes(big.NewInt(int64(o.Side)).Bytes(), 32),
		ethcrypto.Keccak256([]byte(o.Price)),
		ethcrypto.Keccak256([]byte(o.Amount)),
		common.LeftPadBytes(nonce.Bytes(), 32),
	)

	// keccak256("\x19\x01" || domainSeparator || structHash)
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, s.domainSep, structHash), nil
}

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func domainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(name)),
		ethcrypto.Keccak256([]byte(version)),
		common.LeftPadBytes(big.NewInt(int64(chainID)).Bytes(), 32),
	)
}
