package proxy

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testKid = "test-key-1"

func newTestJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	pub := key.PublicKey
	resp := jwksResponse{
		Keys: []jwk{{
			Kid: testKid,
			Kty: "RSA",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func testAuthenticator(t *testing.T, server *httptest.Server) (*Authenticator, Config) {
	t.Helper()
	cfg := Config{
		CognitoRegion:   "us-east-1",
		CognitoPoolID:   "us-east-1_test",
		JWKSURLOverride: server.URL,
	}
	jwks := NewJWKSCache(cfg)
	return NewAuthenticator(cfg, jwks), cfg
}

func TestAuthenticateValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	server := newTestJWKSServer(t, key)
	defer server.Close()

	auth, cfg := testAuthenticator(t, server)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tenant-123",
			Issuer:    cfg.ExpectedIssuer(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenUse:   "access",
		TenantTier: "pro",
	}
	tokenString := signToken(t, key, claims)

	tenant, err := auth.Authenticate(tokenString)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if tenant.ID != "tenant-123" {
		t.Errorf("tenant id = %q, want tenant-123", tenant.ID)
	}
	if tenant.Tier != TierPro {
		t.Errorf("tenant tier = %v, want Pro", tenant.Tier)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	server := newTestJWKSServer(t, key)
	defer server.Close()

	auth, cfg := testAuthenticator(t, server)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tenant-123",
			Issuer:    cfg.ExpectedIssuer(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		TokenUse: "access",
	}
	tokenString := signToken(t, key, claims)

	if _, err := auth.Authenticate(tokenString); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestAuthenticateWrongIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	server := newTestJWKSServer(t, key)
	defer server.Close()

	auth, _ := testAuthenticator(t, server)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tenant-123",
			Issuer:    "https://not-the-expected-issuer.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenUse: "access",
	}
	tokenString := signToken(t, key, claims)

	if _, err := auth.Authenticate(tokenString); err == nil {
		t.Fatal("expected error for wrong issuer")
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc123", "abc123", false},
		{"bearer abc123", "abc123", false},
		{"", "", true},
		{"Basic abc123", "", true},
		{"Bearer ", "", true},
	}
	for _, c := range cases {
		got, err := ExtractBearerToken(c.header)
		if c.wantErr {
			if err == nil {
				t.Errorf("ExtractBearerToken(%q): expected error", c.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractBearerToken(%q): unexpected error %v", c.header, err)
		}
		if got != c.want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}
