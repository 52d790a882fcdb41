package config

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

// KeyringService is the service name in the OS keychain
const KeyringService = "gitreport"

// Credential slots. The provider slots match llm provider names.
const (
	SecretAliyun = "aliyun"
	SecretGroq   = "groq"
	SecretGitHub = "github"
)

// Secrets lists every credential slot.
func Secrets() []string {
	return []string{SecretAliyun, SecretGroq, SecretGitHub}
}

func keyringItem(name string) (string, error) {
	switch name {
	case SecretAliyun, SecretGroq:
		return name + "-api-key", nil
	case SecretGitHub:
		return "github-token", nil
	default:
		return "", fmt.Errorf("未知的凭据: %s (aliyun|groq|github)", name)
	}
}

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *logrus.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	return &KeyringManager{logger: logger}
}

// SetLogLevel sets the logging level
func (km *KeyringManager) SetLogLevel(level logrus.Level) {
	km.logger.SetLevel(level)
}

// Save stores a secret in the OS keychain
func (km *KeyringManager) Save(name, secret string) error {
	item, err := keyringItem(name)
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("%s 不能为空", name)
	}

	if err := keyring.Set(KeyringService, item, secret); err != nil {
		km.logger.WithError(err).Error("保存到系统钥匙串失败")
		return fmt.Errorf("保存到系统钥匙串失败: %w", err)
	}

	km.logger.WithField("item", item).Debug("凭据已保存到钥匙串")
	return nil
}

// Get reads a secret from the OS keychain. A missing entry is "", nil.
func (km *KeyringManager) Get(name string) (string, error) {
	item, err := keyringItem(name)
	if err != nil {
		return "", err
	}

	secret, err := keyring.Get(KeyringService, item)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		km.logger.WithError(err).Debug("读取系统钥匙串失败")
		return "", fmt.Errorf("读取系统钥匙串失败: %w", err)
	}
	return secret, nil
}

// Delete removes a secret from the OS keychain. A missing entry is not an error.
func (km *KeyringManager) Delete(name string) error {
	item, err := keyringItem(name)
	if err != nil {
		return err
	}

	err = keyring.Delete(KeyringService, item)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		km.logger.WithError(err).Error("从系统钥匙串删除失败")
		return fmt.Errorf("从系统钥匙串删除失败: %w", err)
	}

	km.logger.WithField("item", item).Debug("凭据已从钥匙串删除")
	return nil
}

// MaskSecret masks a secret for display: first 4 and last 4 characters.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(未设置)"
	}
	if len(secret) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:4], secret[len(secret)-4:])
}
