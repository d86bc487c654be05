package auth

import (
	"context"
	"os"

	"github.com/codeGROOVE-dev/ctfbridge/ctf"
)

// Environment variables consulted by EnvSource and CredentialsFromEnv.
const (
	EnvToken    = "CTFBRIDGE_TOKEN"
	EnvUsername = "CTFBRIDGE_USERNAME"
	EnvPassword = "CTFBRIDGE_PASSWORD" //nolint:gosec // env var name, not a credential
	EnvSession  = "CTFBRIDGE_SESSION"  // session cookie value
)

// EnvSource reads a session cookie from the environment.
type EnvSource struct{}

// Cookies returns the session cookie from CTFBRIDGE_SESSION, if set.
func (EnvSource) Cookies(_ context.Context, _ string) (map[string]string, error) {
	value := os.Getenv(EnvSession)
	if value == "" {
		return nil, nil //nolint:nilnil // no env var set is not an error
	}
	return map[string]string{"session": value}, nil
}

// CredentialsFromEnv assembles credentials from CTFBRIDGE_* environment
// variables. Returns zero Credentials when nothing is set.
func CredentialsFromEnv() ctf.Credentials {
	return ctf.Credentials{
		Token:    os.Getenv(EnvToken),
		Username: os.Getenv(EnvUsername),
		Password: os.Getenv(EnvPassword),
	}
}
