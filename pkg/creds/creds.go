package creds

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"

	"superpaste/pkg/domain"
	"superpaste/svc/util"
)

var (
	ErrSecretNotFound      = domain.ErrNotFound.Sub("SECRET_NOT_FOUND", "secret not found")
	ErrProviderUnavailable = domain.ErrUpstreamRequestFailed.Sub("SECRET_PROVIDER_UNAVAILABLE", "secret provider unavailable")
	ErrRequiresPrimary     = domain.ErrInvalidArgument.Sub("SECRETS_REQUIRE_PRIMARY", "secrets must come from Vault or AWS Secrets Manager")
)

const lookupTimeout = 10 * time.Second

// Provider resolves backend tokens by their environment name, for example
// HASTEBIN_TOKEN or PASTEEE_TOKEN.
type Provider interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// Adapter asks a primary store first and falls back to a second one.
type Adapter struct {
	primary        Provider
	fallback       Provider
	failClosed     bool
	requirePrimary bool
}

// NewAdapter uses Vault when VAULT_ADDR is set, else AWS Secrets Manager when
// AWS_REGION is set. The process environment is the fallback unless
// SECRETS_REQUIRE_PRIMARY is true.
func NewAdapter(ctx context.Context) (*Adapter, error) {
	requirePrimary := envBool("SECRETS_REQUIRE_PRIMARY")
	var primary Provider
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		token, err := vaultToken()
		if err != nil {
			return nil, err
		}
		vp, err := NewVault(ctx, addr, token, envOr("VAULT_SECRET_PATH", DefaultVaultPath))
		if err != nil {
			util.Warn().Err(err).Msg("vault unavailable for backend tokens")
		} else {
			primary = vp
		}
	}
	if primary == nil && os.Getenv("AWS_REGION") != "" {
		ap, err := newAWS(ctx, os.Getenv("AWS_REGION"), envOr("AWS_SECRET_PREFIX", DefaultAWSPrefix))
		if err != nil {
			util.Warn().Err(err).Msg("aws secrets manager unavailable for backend tokens")
		} else {
			primary = ap
		}
	}
	var fallback Provider
	if !requirePrimary {
		fallback = Env{}
	}
	if primary == nil && fallback == nil {
		return nil, errors.Wrap(ErrRequiresPrimary, "neither Vault nor AWS Secrets Manager is reachable")
	}
	return NewAdapterWith(primary, fallback, envBool("SECRETS_FAIL_CLOSED"), requirePrimary), nil
}

func NewAdapterWith(primary, fallback Provider, failClosed, requirePrimary bool) *Adapter {
	return &Adapter{
		primary:        primary,
		fallback:       fallback,
		failClosed:     failClosed,
		requirePrimary: requirePrimary,
	}
}

func (a *Adapter) GetSecret(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	if a.primary != nil {
		val, err := a.primary.GetSecret(ctx, key)
		if err == nil {
			return val, nil
		}
		switch {
		case a.requirePrimary:
			return "", errors.Wrapf(ErrRequiresPrimary, "%s: %v", key, err)
		case a.failClosed:
			return "", errors.Wrapf(err, "%s (fail-closed)", key)
		}
		util.Debug().Err(err).Str("key", key).Msg("primary secret store missed, using fallback")
	}
	if a.fallback != nil {
		return a.fallback.GetSecret(ctx, key)
	}
	return "", errors.Wrap(ErrProviderUnavailable, key)
}

// DefaultVaultPath is the KV v2 secret holding one field per backend.
const DefaultVaultPath = "secret/data/superpaste"

// Vault reads every backend token from a single KV v2 secret. The field of
// a token is its key in lower case: PASTEEE_TOKEN lives in pasteee_token.
type Vault struct {
	client *vault.Client
	path   string
}

// NewVault connects to addr and checks the server is healthy.
func NewVault(ctx context.Context, addr, token, path string) (*Vault, error) {
	vc := vault.DefaultConfig()
	vc.Address = addr
	vc.Timeout = 5 * time.Second
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, errors.Wrap(err, "vault client")
	}
	if token != "" {
		client.SetToken(token)
	}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Sys().HealthWithContext(healthCtx); err != nil {
		return nil, errors.Wrap(ErrProviderUnavailable, err.Error())
	}
	return &Vault{client: client, path: strings.Trim(path, "/")}, nil
}

func (v *Vault) GetSecret(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return "", errors.Wrapf(ErrProviderUnavailable, "vault read %s: %v", v.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", errors.Wrapf(ErrSecretNotFound, "vault %s", v.path)
	}
	fields, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", errors.Wrapf(ErrSecretNotFound, "vault %s is not a kv v2 secret", v.path)
	}
	field := strings.ToLower(key)
	val, _ := fields[field].(string)
	if val == "" {
		return "", errors.Wrapf(ErrSecretNotFound, "vault %s field %s", v.path, field)
	}
	return val, nil
}

func vaultToken() (string, error) {
	if file := os.Getenv("VAULT_TOKEN_FILE"); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrap(err, "read VAULT_TOKEN_FILE")
		}
		return strings.TrimSpace(string(b)), nil
	}
	return os.Getenv("VAULT_TOKEN"), nil
}

// DefaultAWSPrefix namespaces token secrets in AWS Secrets Manager.
const DefaultAWSPrefix = "superpaste/"

// AWS stores one secret per backend token, named prefix plus the key in
// kebab case: PASTEEE_TOKEN lives in superpaste/pasteee-token.
type AWS struct {
	sm     *secretsmanager.Client
	prefix string
}

func newAWS(ctx context.Context, region, prefix string) (*AWS, error) {
	ac, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "aws config")
	}
	return &AWS{sm: secretsmanager.NewFromConfig(ac), prefix: prefix}, nil
}

// SecretID is the Secrets Manager name for key.
func (a *AWS) SecretID(key string) string {
	return a.prefix + strings.ReplaceAll(strings.ToLower(key), "_", "-")
}

func (a *AWS) GetSecret(ctx context.Context, key string) (string, error) {
	id := a.SecretID(key)
	out, err := a.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &id})
	if err != nil {
		return "", errors.Wrapf(ErrProviderUnavailable, "secrets manager %s: %v", id, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", errors.Wrapf(ErrSecretNotFound, "secrets manager %s has no string value", id)
	}
	return *out.SecretString, nil
}

// Env reads tokens from the process environment.
type Env struct{}

func (Env) GetSecret(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if val := os.Getenv(key); val != "" {
		return val, nil
	}
	return "", errors.Wrapf(ErrSecretNotFound, "environment %s", key)
}

func envOr(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envBool(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}
