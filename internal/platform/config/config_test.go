package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lakyn80/naramkova-moda/internal/money"
)

const testIBAN = "CZ6508000000001234567899"

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_MERCHANT_IBAN": "cz65 0800 0000 0012 3456 7899",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Merchant.IBAN != testIBAN {
		t.Errorf("expected normalised iban, got %q", cfg.Merchant.IBAN)
	}
	if cfg.Merchant.ShippingFee != money.Amount(8900) {
		t.Errorf("expected default shipping fee 89.00, got %s", cfg.Merchant.ShippingFee)
	}
	if cfg.Store.Driver != StoreDriverSQLite {
		t.Errorf("expected sqlite driver, got %s", cfg.Store.Driver)
	}
	if cfg.Store.SQLitePath != defaultSQLitePath {
		t.Errorf("unexpected sqlite path %s", cfg.Store.SQLitePath)
	}
	if cfg.Store.Firestore.Collection != "carts" {
		t.Errorf("unexpected firestore collection %s", cfg.Store.Firestore.Collection)
	}
	if cfg.Backend.BaseURL != "" {
		t.Errorf("expected empty backend url, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != defaultBackendTimeout {
		t.Errorf("unexpected backend timeout %s", cfg.Backend.Timeout)
	}
	if cfg.Session.TTL != defaultSessionTTL {
		t.Errorf("unexpected session ttl %s", cfg.Session.TTL)
	}
	if len(cfg.CORS.AllowedOrigins) != 0 {
		t.Errorf("expected no origins, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info log level, got %s", cfg.LogLevel)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_SERVER_PORT":          "9090",
		"STOREFRONT_SERVER_READ_TIMEOUT":  "20s",
		"STOREFRONT_SERVER_WRITE_TIMEOUT": "25s",
		"STOREFRONT_SERVER_IDLE_TIMEOUT":  "2m",
		"STOREFRONT_BACKEND_BASE_URL":     "https://api.naramkova-moda.cz/",
		"STOREFRONT_BACKEND_TIMEOUT":      "3s",
		"STOREFRONT_BACKEND_API_TOKEN":    "sm://backend/token",
		"STOREFRONT_MERCHANT_IBAN":        testIBAN,
		"STOREFRONT_SHIPPING_FEE_CZK":     "99,50",
		"STOREFRONT_STORE_DRIVER":         "Firestore",
		"STOREFRONT_FIRESTORE_PROJECT_ID": "nm-prod",
		"STOREFRONT_FIRESTORE_COLLECTION": "visitorCarts",
		"STOREFRONT_SESSION_SIGNING_KEY":  "secret://session/key",
		"STOREFRONT_SESSION_TTL":          "72h",
		"STOREFRONT_CORS_ALLOWED_ORIGINS": "https://naramkova-moda.cz, https://www.naramkova-moda.cz",
		"STOREFRONT_ENVIRONMENT":          "prod",
		"STOREFRONT_SECRETS_PROJECT_ID":   "nm-secrets",
		"LOG_LEVEL":                       "DEBUG",
	}

	secrets := map[string]string{
		"secret://backend/token": "backend-token",
		"secret://session/key":   "0123456789abcdef0123456789abcdef",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Backend.BaseURL != "https://api.naramkova-moda.cz" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.APIToken != "backend-token" {
		t.Errorf("expected resolved backend token, got %s", cfg.Backend.APIToken)
	}
	if cfg.Merchant.ShippingFee != money.Amount(9950) {
		t.Errorf("expected shipping fee 99.50, got %s", cfg.Merchant.ShippingFee)
	}
	if cfg.Store.Driver != StoreDriverFirestore || cfg.Store.Firestore.Collection != "visitorCarts" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Session.SigningKey != secrets["secret://session/key"] {
		t.Errorf("expected resolved signing key")
	}
	if cfg.Session.TTL != 72*time.Hour {
		t.Errorf("unexpected session ttl %s", cfg.Session.TTL)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://www.naramkova-moda.cz" {
		t.Errorf("unexpected origins %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected lower-cased log level, got %s", cfg.LogLevel)
	}
	if cfg.Secrets.ProjectID != "nm-secrets" {
		t.Errorf("unexpected secrets project %s", cfg.Secrets.ProjectID)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_STORE_DRIVER":     "redis",
		"STOREFRONT_SHIPPING_FEE_CZK": "free",
		"STOREFRONT_ENVIRONMENT":      "prod",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	fields := map[string]bool{}
	for _, f := range validationErr.Fields() {
		fields[f] = true
	}
	for _, want := range []string{"Merchant.IBAN", "Merchant.ShippingFee", "Store.Driver", "Session.SigningKey"} {
		if !fields[want] {
			t.Errorf("expected %s in validation fields, got %v", want, validationErr.Fields())
		}
	}
}

func TestLoadFirestoreRequiresProject(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_MERCHANT_IBAN": testIBAN,
		"STOREFRONT_STORE_DRIVER":  "firestore",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := validationErr.Fields(); len(got) != 1 || got[0] != "Store.Firestore.ProjectID" {
		t.Fatalf("unexpected fields %v", got)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_MERCHANT_IBAN":       testIBAN,
		"STOREFRONT_SESSION_SIGNING_KEY": "sm://session/key",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(nil))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://session/key" {
		t.Fatalf("expected normalised ref, got %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected wrapped resolver error")
	}
}

func TestLoadRequiredSecretsMissing(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_MERCHANT_IBAN": testIBAN,
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithRequiredSecrets("Session.SigningKey", "Session.SigningKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Session.SigningKey" {
		t.Fatalf("unexpected names %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "Session.SigningKey" {
		t.Fatalf("expected redacted name, got %v", redacted)
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# local overrides\nSTOREFRONT_MERCHANT_IBAN=" + testIBAN + "\nSTOREFRONT_SERVER_PORT=7000\nexport STOREFRONT_SHIPPING_FEE_CZK=\"79\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"STOREFRONT_SERVER_PORT": "7100",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7100" {
		t.Errorf("expected env map to override .env, got %s", cfg.Server.Port)
	}
	if cfg.Merchant.ShippingFee != money.Amount(7900) {
		t.Errorf("expected .env shipping fee 79.00, got %s", cfg.Merchant.ShippingFee)
	}
	if cfg.Merchant.IBAN != testIBAN {
		t.Errorf("expected iban from .env, got %s", cfg.Merchant.IBAN)
	}
}

func TestEnvironmentValues(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("A=1\nB=2\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{"B": "3"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["A"] != "1" || values["B"] != "3" {
		t.Fatalf("unexpected values %v", values)
	}
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	env := map[string]string{"STOREFRONT_MERCHANT_IBAN": testIBAN}
	if _, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(filepath.Join(t.TempDir(), "missing.env"))); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
