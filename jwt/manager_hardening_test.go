package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var hsKey = []byte("0123456789abcdef0123456789abcdef")

func newHSManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	cfg.SigningMethod = MethodHS256
	cfg.PrivateKey = hsKey
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

// loginClaims are well-formed claims for a guest login, issued now.
func loginClaims() AccessClaims {
	now := time.Now()
	return AccessClaims{
		UID:  "guest-42",
		SID:  "login-1",
		Role: "guest",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "guest-42",
			Issuer:    "gatekeep",
			Audience:  gjwt.ClaimStrings{"marketplace"},
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
}

func signHS(t *testing.T, claims AccessClaims) string {
	t.Helper()
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(hsKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestCreateAccessCarriesLoginIdentity(t *testing.T) {
	m := newHSManager(t, Config{Issuer: "gatekeep", Audience: "marketplace"})

	before := time.Now()
	token, expiresAt, err := m.CreateAccess("host-7", "login-abc", "host")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if d := expiresAt.Sub(before); d < 15*time.Minute-time.Second || d > 15*time.Minute+time.Second {
		t.Fatalf("expected ~15m lifetime, got %s", d)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "host-7" || claims.Subject != "host-7" {
		t.Fatalf("unexpected user in claims: %+v", claims)
	}
	if claims.SID != "login-abc" || claims.Role != "host" {
		t.Fatalf("unexpected login in claims: %+v", claims)
	}
	if claims.ExpiresAt.Unix() != expiresAt.Unix() {
		t.Fatalf("returned expiry %s does not match exp claim %s", expiresAt, claims.ExpiresAt.Time)
	}
}

func TestEachLoginGetsItsOwnSession(t *testing.T) {
	m := newHSManager(t, Config{})

	first, _, err := m.CreateAccess("guest-42", "login-1", "guest")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, _, err := m.CreateAccess("guest-42", "login-2", "guest")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first == second {
		t.Fatal("distinct logins produced the same token")
	}

	a, err := m.ParseAccess(first)
	if err != nil {
		t.Fatalf("parse first: %v", err)
	}
	b, err := m.ParseAccess(second)
	if err != nil {
		t.Fatalf("parse second: %v", err)
	}
	if a.SID == b.SID || a.UID != b.UID {
		t.Fatalf("expected same user with different sessions, got %q/%q and %q/%q", a.UID, a.SID, b.UID, b.SID)
	}
}

func TestCreateAccessRequiresLoginIdentity(t *testing.T) {
	m := newHSManager(t, Config{})

	if _, _, err := m.CreateAccess("", "login-1", "guest"); !errors.Is(err, ErrMissingLogin) {
		t.Fatalf("expected ErrMissingLogin for empty uid, got %v", err)
	}
	if _, _, err := m.CreateAccess("guest-42", "", "guest"); !errors.Is(err, ErrMissingLogin) {
		t.Fatalf("expected ErrMissingLogin for empty sid, got %v", err)
	}
}

func TestParseAccessRejectsMalformedClaims(t *testing.T) {
	m := newHSManager(t, Config{Issuer: "gatekeep", Audience: "marketplace", Leeway: 30 * time.Second})

	tests := []struct {
		name   string
		mutate func(*AccessClaims)
		want   error
	}{
		{"valid", func(*AccessClaims) {}, nil},
		{"no role is fine", func(c *AccessClaims) { c.Role = "" }, nil},
		{"missing sid", func(c *AccessClaims) { c.SID = "" }, ErrMissingLogin},
		{"missing uid", func(c *AccessClaims) { c.UID = ""; c.Subject = "" }, ErrMissingLogin},
		{"subject for another user", func(c *AccessClaims) { c.Subject = "guest-43" }, ErrSubjectMismatch},
		{"missing iat", func(c *AccessClaims) { c.IssuedAt = nil }, ErrMissingIssuedAt},
		{"missing exp", func(c *AccessClaims) { c.ExpiresAt = nil }, gjwt.ErrTokenRequiredClaimMissing},
		{"issued in the future", func(c *AccessClaims) {
			c.IssuedAt = gjwt.NewNumericDate(time.Now().Add(5 * time.Minute))
			c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(10 * time.Minute))
		}, gjwt.ErrTokenUsedBeforeIssued},
		{"expired within leeway", func(c *AccessClaims) {
			c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-15 * time.Second))
		}, nil},
		{"expired beyond leeway", func(c *AccessClaims) {
			c.IssuedAt = gjwt.NewNumericDate(time.Now().Add(-20 * time.Minute))
			c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute))
		}, gjwt.ErrTokenExpired},
		{"other issuer", func(c *AccessClaims) { c.Issuer = "elsewhere" }, gjwt.ErrTokenInvalidIssuer},
		{"other audience", func(c *AccessClaims) { c.Audience = gjwt.ClaimStrings{"payments"} }, gjwt.ErrTokenInvalidAudience},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := loginClaims()
			tt.mutate(&claims)

			_, err := m.ParseAccess(signHS(t, claims))
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected token to parse: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseAccessPinsAlgorithm(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "gatekeep",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := loginClaims()
	claims.Audience = nil

	// HS256 signed with the public key bytes is the classic key-confusion attempt.
	confused, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte(pub))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccess(confused); err == nil {
		t.Fatal("expected HS256 token to be rejected by an Ed25519 manager")
	}

	unsigned, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.ParseAccess(unsigned); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}

	good, _, err := m.CreateAccess("guest-42", "login-1", "guest")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected own token to parse: %v", err)
	}
}

func TestVerifyOnlyManager(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	verifier, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	token, _, err := signer.CreateAccess("host-7", "login-9", "host")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := verifier.ParseAccess(token)
	if err != nil {
		t.Fatalf("verify-only parse: %v", err)
	}
	if claims.SID != "login-9" {
		t.Fatalf("unexpected sid %q", claims.SID)
	}

	if _, _, err := verifier.CreateAccess("host-7", "login-10", "host"); !errors.Is(err, ErrVerifyOnly) {
		t.Fatalf("expected ErrVerifyOnly, got %v", err)
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)

	cases := map[string]Config{
		"zero ttl":         {SigningMethod: MethodHS256, PrivateKey: hsKey},
		"short hs256 key":  {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"ed25519 no keys":  {AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		"ed25519 bad key":  {AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: []byte("nope")},
		"mismatched pair":  {AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, PrivateKey: otherPriv},
		"unsupported alg":  {AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: hsKey},
		"leeway too large": {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hsKey, Leeway: time.Hour},
		"negative leeway":  {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hsKey, Leeway: -time.Second},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestHS256KeyIsCopied(t *testing.T) {
	key := append([]byte(nil), hsKey...)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: key})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := m.CreateAccess("guest-42", "login-1", "")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	for i := range key {
		key[i] = 'x'
	}
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("mutating the caller's key must not affect the manager: %v", err)
	}
}
