package config

import (
	"os"
	"strings"

	"gitreport/pkg/llm"
)

// KeySource says where a credential was found
type KeySource string

const (
	KeySourceEnv     KeySource = "env"
	KeySourceKeyring KeySource = "keychain"
	KeySourceFile    KeySource = "config"
	KeySourceNone    KeySource = "none"
)

var secretEnv = map[string]string{
	SecretAliyun: "ALIYUN_API_KEY",
	SecretGroq:   "GROQ_API_KEY",
	SecretGitHub: "GITHUB_TOKEN",
}

// SetKeyring replaces the keychain used to resolve credentials.
func (c *Config) SetKeyring(km *KeyringManager) {
	c.keyring = km
}

func (c *Config) keychain() *KeyringManager {
	if c.keyring == nil {
		c.keyring = NewKeyringManager()
	}
	return c.keyring
}

func (c *Config) fileSecret(name string) string {
	switch name {
	case SecretAliyun:
		return c.Providers.Aliyun.APIKey
	case SecretGroq:
		return c.Providers.Groq.APIKey
	case SecretGitHub:
		return c.GitHub.Token
	}
	return ""
}

// Secret resolves a credential: environment first, then the OS keychain,
// then the config file.
func (c *Config) Secret(name string) (string, KeySource) {
	if v := strings.TrimSpace(os.Getenv(secretEnv[name])); v != "" {
		return v, KeySourceEnv
	}
	if v, err := c.keychain().Get(name); err == nil && v != "" {
		return v, KeySourceKeyring
	}
	if v := strings.TrimSpace(c.fileSecret(name)); v != "" {
		return v, KeySourceFile
	}
	return "", KeySourceNone
}

// Credentials returns the provider credentials handed to the report dispatcher.
func (c *Config) Credentials() llm.Credentials {
	creds := llm.Credentials{}
	for _, p := range llm.Providers() {
		if v, _ := c.Secret(string(p)); v != "" {
			creds[p] = v
		}
	}
	return creds
}

// GitHubToken returns the token for the remote source, or "" for anonymous access.
func (c *Config) GitHubToken() string {
	v, _ := c.Secret(SecretGitHub)
	return v
}

// DispatcherOptions builds the provider table options.
func (c *Config) DispatcherOptions() llm.Options {
	return llm.Options{
		AliyunBaseURL: c.Providers.Aliyun.BaseURL,
		GroqBaseURL:   c.Providers.Groq.BaseURL,
		AliyunProxy:   c.Providers.Aliyun.Proxy,
		GroqProxy:     c.Providers.Groq.Proxy,
		Timeout:       c.Timeout,
	}
}

// SecretEnv returns the environment variable a credential slot is read from.
func SecretEnv(name string) string {
	return secretEnv[name]
}
