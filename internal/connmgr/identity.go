package connmgr

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// ServerDef is a target endpoint descriptor, created during URI parsing or
// topology discovery. It contains no live resources and is safe to copy.
type ServerDef struct {
	// Host is the server's DNS name or literal IP address.
	Host string

	// Port is the server's listening TCP port.
	Port uint16

	// AuthDB is the database authentication credentials are checked
	// against. Empty means no authentication is attempted.
	AuthDB string

	// Username is the authentication principal. Empty means no
	// authentication is attempted.
	Username string

	// Password is the plaintext authentication secret. Empty means no
	// authentication is attempted.
	Password string
}

// hasAuth reports whether all three authentication fields are present, the
// precondition spec.md §4.3 requires before the acquirer runs the nonce/
// authenticate handshake.
func (s ServerDef) hasAuth() bool {
	return s.AuthDB != "" && s.Username != "" && s.Password != ""
}

// Identity produces a stable canonical key for a ServerDef (spec.md §4.1).
// Two ServerDefs equal in (Host, Port, AuthDB, Username, Password) produce
// the same key; any difference in those fields produces a different key.
// This is a formatting contract, not a cryptographic commitment — fields are
// length-prefixed before hashing so no combination of field boundaries can
// collide (e.g. Host="a", Port=1 vs Host="a1", Port=<empty> cannot alias).
func Identity(s ServerDef) string {
	h := sha256.New()
	writeField(h, s.Host)
	writeField(h, strconv.Itoa(int(s.Port)))
	writeField(h, s.AuthDB)
	writeField(h, s.Username)
	writeField(h, s.Password)
	return hex.EncodeToString(h.Sum(nil))
}

// writeField feeds a length-prefixed field into a running hash so that field
// boundaries are unambiguous regardless of field content.
func writeField(h interface{ Write([]byte) (int, error) }, field string) {
	var lenBuf [8]byte
	n := len(field)
	for i := range lenBuf {
		lenBuf[i] = byte(n >> (56 - 8*i))
	}
	_, _ = h.Write(lenBuf[:])
	_, _ = h.Write([]byte(field))
}

// authScope derives the authentication-scope key used by the selector's
// candidate filter (spec.md §4.5): connections authenticated under
// different (user, password) pairs must never be offered to a caller
// expecting a different scope, even against the same server.
func authScope(hashPassword func(user, password string) string, s ServerDef) string {
	if !s.hasAuth() {
		return ""
	}
	return s.Username + "\x00" + hashPassword(s.Username, s.Password)
}
