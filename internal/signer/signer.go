// Package signer holds the credentials transactions are signed with.
package signer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// Credential is a parsed secret seed. Its zero value is unusable.
type Credential struct {
	kp *keypair.Full
}

// ParseSecret parses an S... secret seed.
func ParseSecret(seed string) (Credential, error) {
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return Credential{}, errors.Wrap(err, "parsing secret seed")
	}
	return Credential{kp: kp}, nil
}

// FromKeypair wraps an already parsed keypair.
func FromKeypair(kp *keypair.Full) Credential {
	return Credential{kp: kp}
}

// Address returns the G... account the credential controls.
func (c Credential) Address() string {
	if c.kp == nil {
		return ""
	}
	return c.kp.Address()
}

// String never reveals the seed.
func (c Credential) String() string {
	if c.kp == nil {
		return "credential(<empty>)"
	}
	return "credential(" + c.kp.Address() + ")"
}

func (c Credential) Valid() bool {
	return c.kp != nil
}

// Signer produces a signed copy of tx.
type Signer interface {
	Sign(ctx context.Context, tx *txnbuild.Transaction, cred Credential) (*txnbuild.Transaction, error)
}

// KeypairSigner signs locally for the network identified by Passphrase.
type KeypairSigner struct {
	Passphrase string
}

func (s KeypairSigner) Sign(ctx context.Context, tx *txnbuild.Transaction, cred Credential) (*txnbuild.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cred.Valid() {
		return nil, errors.New("signing: empty credential")
	}
	if s.Passphrase == "" {
		return nil, errors.New("signing: network passphrase not set")
	}
	signed, err := tx.Sign(s.Passphrase, cred.kp)
	if err != nil {
		return nil, errors.Wrap(err, "signing transaction")
	}
	return signed, nil
}
