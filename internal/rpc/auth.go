package rpc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	authUsername  = "admin"
	authAlgorithm = "SHA-256"
)

// challenge is the digest challenge a device sends in the message of a 401
// error.
type challenge struct {
	AuthType  string      `json:"auth_type"`
	Nonce     json.Number `json:"nonce"`
	NC        int         `json:"nc"`
	Realm     string      `json:"realm"`
	Algorithm string      `json:"algorithm"`
}

// authParams is the auth object attached to requests.
type authParams struct {
	Realm     string      `json:"realm"`
	Username  string      `json:"username"`
	Nonce     json.Number `json:"nonce"`
	CNonce    string      `json:"cnonce"`
	Response  string      `json:"response"`
	Algorithm string      `json:"algorithm"`
}

func parseChallenge(message string) (*challenge, error) {
	var c challenge
	if err := json.Unmarshal([]byte(message), &c); err != nil {
		return nil, fmt.Errorf("failed to parse auth challenge: %w", err)
	}
	if c.Realm == "" || c.Nonce == "" {
		return nil, fmt.Errorf("incomplete auth challenge: %q", message)
	}
	if c.NC == 0 {
		c.NC = 1
	}
	return &c, nil
}

// answer computes the digest response for password.
func (c *challenge) answer(password string) *authParams {
	cnonce := newCNonce()

	ha1 := sha256Hex(authUsername + ":" + c.Realm + ":" + password)
	ha2 := sha256Hex("dummy_method:dummy_uri")
	response := sha256Hex(ha1 + ":" + c.Nonce.String() + ":" + strconv.Itoa(c.NC) + ":" +
		cnonce + ":auth:" + ha2)

	return &authParams{
		Realm:     c.Realm,
		Username:  authUsername,
		Nonce:     c.Nonce,
		CNonce:    cnonce,
		Response:  response,
		Algorithm: authAlgorithm,
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCNonce() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
