package sysap

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SASL mechanisms in order of preference
const (
	MechanismSCRAMSHA1 = "SCRAM-SHA-1"
	MechanismPlain     = "PLAIN"
)

var errServerSignature = errors.New("scram: server signature mismatch")

// scramClient runs the client side of SCRAM-SHA-1 (RFC 5802) without
// channel binding.
type scramClient struct {
	username string
	password string
	nonce    string

	clientFirstBare string
	serverSignature []byte
}

func newSCRAMClient(username, password, nonce string) *scramClient {
	if nonce == "" {
		nonce = randomNonce()
	}
	return &scramClient{username: username, password: password, nonce: nonce}
}

func randomNonce() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawStdEncoding.EncodeToString(b)
}

// saslName escapes '=' and ',' in a username
func saslName(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	return strings.ReplaceAll(s, ",", "=2C")
}

// ClientFirst returns the client-first-message
func (s *scramClient) ClientFirst() string {
	s.clientFirstBare = "n=" + saslName(s.username) + ",r=" + s.nonce
	return "n,," + s.clientFirstBare
}

// ClientFinal answers the server-first-message with the client proof
func (s *scramClient) ClientFinal(serverFirst string) (string, error) {
	attrs := parseSCRAMAttributes(serverFirst)

	nonce := attrs["r"]
	if !strings.HasPrefix(nonce, s.nonce) || len(nonce) == len(s.nonce) {
		return "", fmt.Errorf("scram: server nonce does not extend client nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(attrs["s"])
	if err != nil || len(salt) == 0 {
		return "", fmt.Errorf("scram: invalid salt")
	}
	iterations, err := strconv.Atoi(attrs["i"])
	if err != nil || iterations <= 0 {
		return "", fmt.Errorf("scram: invalid iteration count %q", attrs["i"])
	}

	salted := pbkdf2.Key([]byte(s.password), salt, iterations, sha1.Size, sha1.New)
	clientKey := hmacSHA1(salted, []byte("Client Key"))
	storedKey := sha1.Sum(clientKey)

	finalWithoutProof := "c=biws,r=" + nonce
	authMessage := s.clientFirstBare + "," + serverFirst + "," + finalWithoutProof

	clientSignature := hmacSHA1(storedKey[:], []byte(authMessage))
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	serverKey := hmacSHA1(salted, []byte("Server Key"))
	s.serverSignature = hmacSHA1(serverKey, []byte(authMessage))

	return finalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof), nil
}

// VerifyServerFinal checks the server-final-message signature
func (s *scramClient) VerifyServerFinal(serverFinal string) error {
	attrs := parseSCRAMAttributes(serverFinal)
	if e, ok := attrs["e"]; ok {
		return fmt.Errorf("scram: server error %q", e)
	}
	v, err := base64.StdEncoding.DecodeString(attrs["v"])
	if err != nil || !hmac.Equal(v, s.serverSignature) {
		return errServerSignature
	}
	return nil
}

func hmacSHA1(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func parseSCRAMAttributes(msg string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 || part[1] != '=' {
			continue
		}
		attrs[part[:1]] = part[2:]
	}
	return attrs
}

// plainPayload returns the SASL PLAIN message authzid\0authcid\0passwd
func plainPayload(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte("\x00" + username + "\x00" + password))
}
