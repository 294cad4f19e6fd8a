package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/golang-jwt/jwt/v5"
)

// Identity extracts the authenticated user id from a token issued by
// the login service. Issuing tokens and verifying passwords happen
// elsewhere; this side only checks the HMAC signature and reads the
// claims.
type Identity struct {
	secret []byte
}

// NewIdentity creates a verifier. The HMAC secret is shared with the
// login service via the settings table; a fresh one is generated and
// persisted on first boot.
func NewIdentity(db *DB) *Identity {
	return &Identity{secret: loadOrCreateSecret(db)}
}

// loadOrCreateSecret loads the JWT secret from the database, or
// generates and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("warning: could not persist JWT secret: %v", err)
		}
	}
	return secret
}

// VerifyToken validates a JWT and returns (userID, username, error)
func (a *Identity) VerifyToken(tokenStr string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", fmt.Errorf("invalid token")
	}

	uidFloat, ok := claims["uid"].(float64)
	if !ok {
		return 0, "", fmt.Errorf("invalid token claims")
	}
	username, _ := claims["usr"].(string)

	return int64(uidFloat), username, nil
}

// MintToken signs a token for the given user. Only tests and local
// tooling call this; production tokens come from the login service.
func (a *Identity) MintToken(userID int64, username string) (string, error) {
	claims := jwt.MapClaims{
		"uid": userID,
		"usr": username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
