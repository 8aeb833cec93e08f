package roundtrip

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

type TransactionSigner interface {
	PublicKey() solana.PublicKey
	SignPayload(payload []byte) (SignedTransaction, error)
	SignTransaction(tx *solana.Transaction) (SignedTransaction, error)
}

// Signer holds the custody key. It is the only place the key is used and it never prints it.
type Signer struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

func NewSigner(key solana.PrivateKey) *Signer {
	return &Signer{key: key, pub: key.PublicKey()}
}

// NewSignerFromBase58 parses a base58 encoded 64-byte keypair.
func NewSignerFromBase58(encoded string) (*Signer, error) {
	key, err := solana.PrivateKeyFromBase58(encoded)
	if err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}

func (s *Signer) PublicKey() solana.PublicKey {
	return s.pub
}

func (s *Signer) String() string {
	return "signer(" + s.pub.String() + ")"
}

// SignPayload decodes a wire transaction built by the venue, adds this signer's signature
// and returns it encoded for the relay.
func (s *Signer) SignPayload(payload []byte) (SignedTransaction, error) {
	if len(payload) == 0 {
		return "", &InvalidPayloadError{Reason: "empty payload"}
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(payload))
	if err != nil {
		return "", &InvalidPayloadError{Reason: "decode transaction", Err: err}
	}
	return s.SignTransaction(tx)
}

func (s *Signer) SignTransaction(tx *solana.Transaction) (SignedTransaction, error) {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 || len(tx.Message.AccountKeys) < required {
		return "", &InvalidPayloadError{Reason: "transaction has no signer slots"}
	}
	slot := -1
	for i := 0; i < required; i++ {
		if tx.Message.AccountKeys[i].Equals(s.pub) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return "", &InvalidPayloadError{Reason: "signer " + s.pub.String() + " is not a required signer"}
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", &InvalidPayloadError{Reason: "encode message", Err: err}
	}
	signature, err := s.key.Sign(message)
	if err != nil {
		return "", err
	}

	// venue payloads arrive with zeroed placeholders, local drafts with none
	if len(tx.Signatures) < required {
		signatures := make([]solana.Signature, required)
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}
	tx.Signatures[slot] = signature

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", &InvalidPayloadError{Reason: "encode transaction", Err: err}
	}
	return SignedTransaction(base58.Encode(raw)), nil
}
