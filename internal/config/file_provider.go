package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	defaultSecretsPath   = "/var/secrets"
	serviceAccountDir    = "/var/run/secrets/kubernetes.io/serviceaccount"
	serviceAccountToken  = serviceAccountDir + "/token"
	serviceAccountNSFile = serviceAccountDir + "/namespace"
)

// FileProvider retrieves secrets from mounted files, one secret per file.
// Example: /var/secrets/anthropic-api-key, /var/secrets/jwt-secret
type FileProvider struct {
	secretsPath string
}

// NewFileProvider creates a new file-based secret provider
func NewFileProvider(secretsPath string) *FileProvider {
	return &FileProvider{
		secretsPath: secretsPath,
	}
}

// GetSecret retrieves a secret from a file.
// ANTHROPIC_API_KEY is read from <secretsPath>/anthropic-api-key.
func (f *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if f.secretsPath == "" {
		return "", eris.New("config: secrets path not configured")
	}

	filename := strings.ToLower(strings.ReplaceAll(key, "_", "-"))
	path := filepath.Join(f.secretsPath, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", eris.Wrapf(err, "config: read secret file %s", path)
	}

	return strings.TrimSpace(string(data)), nil
}

// Name returns the provider name
func (f *FileProvider) Name() string {
	return "file"
}

// IsAvailable checks if the secrets directory exists
func (f *FileProvider) IsAvailable(ctx context.Context) bool {
	if f.secretsPath == "" {
		return false
	}

	info, err := os.Stat(f.secretsPath)
	if err != nil {
		return false
	}

	return info.IsDir()
}

// K8sProvider reads secrets mounted into a Kubernetes pod. It is only
// available when a service account token is present.
type K8sProvider struct {
	*FileProvider
	namespace string
	tokenPath string
}

// NewK8sProvider creates a new Kubernetes secret provider
func NewK8sProvider(secretsPath, namespace string) *K8sProvider {
	if secretsPath == "" {
		secretsPath = defaultSecretsPath
	}
	if namespace == "" {
		namespace = "default"
		if ns, err := os.ReadFile(serviceAccountNSFile); err == nil {
			namespace = strings.TrimSpace(string(ns))
		}
	}

	return &K8sProvider{
		FileProvider: NewFileProvider(secretsPath),
		namespace:    namespace,
		tokenPath:    serviceAccountToken,
	}
}

// Name returns the provider name
func (k *K8sProvider) Name() string {
	return "kubernetes"
}

// IsAvailable checks if running in a Kubernetes environment
func (k *K8sProvider) IsAvailable(ctx context.Context) bool {
	if _, err := os.Stat(k.tokenPath); err != nil {
		return false
	}
	return k.FileProvider.IsAvailable(ctx)
}

// GetNamespace returns the current Kubernetes namespace
func (k *K8sProvider) GetNamespace() string {
	return k.namespace
}
