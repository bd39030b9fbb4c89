package client

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/nats-io/nkeys"

	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/wire"
)

// fillAuth completes the CONNECT payload with whichever credential mode the
// client was configured with. Nonce-signed modes use the nonce from the
// just-received INFO.
func (c *Client) fillAuth(info *wire.ConnectInfo, nonce string) error {
	switch {
	case c.credsPath != "":
		jwt, seed, err := loadCredentials(c.credsPath)
		if err != nil {
			return err
		}
		defer wipe(seed)
		sig, _, err := signNonce(seed, nonce)
		if err != nil {
			return err
		}
		info.JWT = jwt
		info.Signature = sig

	case len(c.nkeySeed) > 0:
		sig, pub, err := signNonce(c.nkeySeed, nonce)
		if err != nil {
			return err
		}
		info.NKey = pub
		info.Signature = sig

	case c.token != "":
		info.Token = c.token

	case c.user != "":
		info.User = c.user
		info.Password = c.password
	}
	return nil
}

// signNonce signs the broker nonce with the ed25519 key derived from seed
// and returns the base64url signature plus the public key.
func signNonce(seed []byte, nonce string) (sig, pub string, err error) {
	if nonce == "" {
		return "", "", errors.WrapFatal(
			fmt.Errorf("broker sent no nonce"), "Client", "signNonce", "sign auth nonce")
	}
	kp, err := nkeys.FromSeed(seed)
	if err != nil {
		return "", "", errors.WrapFatal(err, "Client", "signNonce", "parse nkey seed")
	}
	defer kp.Wipe()

	pub, err = kp.PublicKey()
	if err != nil {
		return "", "", errors.WrapFatal(err, "Client", "signNonce", "derive public key")
	}
	raw, err := kp.Sign([]byte(nonce))
	if err != nil {
		return "", "", errors.WrapFatal(err, "Client", "signNonce", "sign auth nonce")
	}
	return base64.RawURLEncoding.EncodeToString(raw), pub, nil
}

// loadCredentials reads a decorated credentials file holding a user JWT and
// an nkey seed. The file is re-read on every connect so rotated credentials
// take effect at the next reconnect.
func loadCredentials(path string) (jwt string, seed []byte, err error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", nil, errors.WrapInvalid(err, "Client", "loadCredentials", "read credentials file")
	}
	defer wipe(contents)

	jwt, err = nkeys.ParseDecoratedJWT(contents)
	if err != nil {
		return "", nil, errors.WrapInvalid(err, "Client", "loadCredentials", "parse user jwt")
	}
	kp, err := nkeys.ParseDecoratedNKey(contents)
	if err != nil {
		return "", nil, errors.WrapInvalid(err, "Client", "loadCredentials", "parse nkey seed")
	}
	defer kp.Wipe()
	s, err := kp.Seed()
	if err != nil {
		return "", nil, errors.WrapInvalid(err, "Client", "loadCredentials", "extract nkey seed")
	}
	return jwt, s, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
