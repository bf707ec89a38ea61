package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/oauth2"

	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/crypto"
)

const PKCEInvalidCodeChallengeError = "code challenge does not match previously saved code verifier"
const PKCEInvalidCodeMethodError = "code challenge method not supported"

// stateLength is the number of random bytes behind an OAuth state value.
const stateLength = 32

// AuthorizationMaterial is the secret material minted for one login attempt.
// State and Verifier are persisted as a pending authorization, Challenge and
// Method travel to the provider in the authorization URL.
type AuthorizationMaterial struct {
	State     string
	Verifier  string
	Challenge string
	Method    string
}

// GenerateAuthorizationMaterial draws a fresh state and code verifier and
// derives the challenge for method. It panics if the system entropy source
// fails.
func GenerateAuthorizationMaterial(method string) (*AuthorizationMaterial, error) {
	method = strings.ToLower(method)

	verifier := oauth2.GenerateVerifier()
	var challenge string
	switch method {
	case conf.CodeChallengeMethodPlain:
		challenge = verifier
	case conf.CodeChallengeMethodS256:
		challenge = oauth2.S256ChallengeFromVerifier(verifier)
	default:
		return nil, errors.New(PKCEInvalidCodeMethodError)
	}

	return &AuthorizationMaterial{
		State:     crypto.SecureToken(stateLength),
		Verifier:  verifier,
		Challenge: challenge,
		Method:    method,
	}, nil
}

// VerifyPKCEChallenge performs PKCE verification using the provided challenge, method, and verifier
func VerifyPKCEChallenge(codeChallenge, codeChallengeMethod, codeVerifier string) error {
	switch strings.ToLower(codeChallengeMethod) {
	case conf.CodeChallengeMethodS256:
		hashedCodeVerifier := sha256.Sum256([]byte(codeVerifier))
		encodedCodeVerifier := base64.RawURLEncoding.EncodeToString(hashedCodeVerifier[:])
		if subtle.ConstantTimeCompare([]byte(codeChallenge), []byte(encodedCodeVerifier)) != 1 {
			return errors.New(PKCEInvalidCodeChallengeError)
		}
	case conf.CodeChallengeMethodPlain:
		if subtle.ConstantTimeCompare([]byte(codeChallenge), []byte(codeVerifier)) != 1 {
			return errors.New(PKCEInvalidCodeChallengeError)
		}
	default:
		return errors.New(PKCEInvalidCodeMethodError)
	}
	return nil
}
