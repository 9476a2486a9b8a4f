package jwt

import (
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// FuzzParseAccess feeds arbitrary strings to the parser. Anything it accepts
// must name both a user and a login.
func FuzzParseAccess(f *testing.F) {
	key := []byte("fuzz-fuzz-fuzz-fuzz-fuzz-fuzz-32")
	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    key,
		Issuer:        "gatekeep",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		f.Fatal(err)
	}

	valid, _, err := m.CreateAccess("guest-1", "login-1", "guest")
	if err != nil {
		f.Fatal(err)
	}
	noLogin, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, AccessClaims{
		UID: "guest-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "gatekeep",
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(key)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add(noLogin)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJndWVzdC0xIiwic2lkIjoibG9naW4tMSJ9.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := m.ParseAccess(input)
		if err != nil {
			return
		}
		if claims.UID == "" || claims.SID == "" {
			t.Fatalf("accepted token without login identity: %+v", claims)
		}
	})
}
