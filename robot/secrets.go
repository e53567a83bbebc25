package robot

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// SecretStore resolves credentials for remote endpoints. Passwords never
// appear in the profiles file.
type SecretStore interface {
	Password(host string, username string) (string, error)
}

const keyringServicePrefix = "robot-automator::"

// KeyringSecrets reads passwords from the operating system keyring, stored
// under the service "robot-automator::<host>" and the account username.
type KeyringSecrets struct{}

func (KeyringSecrets) Password(host string, username string) (string, error) {
	pw, err := keyring.Get(keyringServicePrefix+host, username)
	if err != nil {
		return "", fmt.Errorf("keyring lookup for %s@%s: %w", username, host, err)
	}
	return pw, nil
}

// StorePassword saves a password to the keyring for later lookup.
func StorePassword(host string, username string, password string) error {
	return keyring.Set(keyringServicePrefix+host, username, password)
}

// StaticSecrets serves fixed credentials, used in tests.
type StaticSecrets map[string]string

func (s StaticSecrets) Password(host string, username string) (string, error) {
	if pw, ok := s[username+"@"+host]; ok {
		return pw, nil
	}
	return "", fmt.Errorf("no credential for %s@%s", username, host)
}
