package userdb

import (
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for stored password hashes.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
)

// hashPassword derives an argon2id hash from the password, salted with the
// username so identical passwords on different accounts hash differently.
func hashPassword(password, username string) string {
	hash := argon2.IDKey(
		[]byte(password),
		[]byte(username),
		argonTime,
		argonMemory,
		argonThreads,
		argonKeyLen,
	)
	return base64.RawURLEncoding.EncodeToString(hash)
}

// verifyPassword checks a password against a stored hash in constant time.
func verifyPassword(password, username, storedHash string) bool {
	computed := hashPassword(password, username)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
