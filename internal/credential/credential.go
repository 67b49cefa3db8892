// Package credential verifies passwords against an externally owned user
// table and answers identity lookups for the hosting identity platform.
//
// Every operation fails closed: a database fault, a missing row, a NULL
// hash and a mismatched password all produce the same negative answer.
// Faults are logged with the vendor's SQL state and error code, never
// returned.
package credential

import "strings"

// PasswordType is the only credential kind this store can verify.
const PasswordType = "password"

// storagePrefix marks a realm-qualified id: f:<component>:<username>.
const storagePrefix = "f:"

// Identity is the user object handed back to the platform. The verifier
// only ever reads its username.
type Identity interface {
	Username() string
}

// IdentityFactory builds the platform's identity for a verified username
// in realm.
type IdentityFactory func(realm, username string) Identity

// CredentialInput is a credential presented for validation.
type CredentialInput struct {
	Type      string `json:"type"`
	Challenge string `json:"value"`
}

// User is the default Identity.
type User struct {
	Realm      string `json:"realm"`
	Name       string `json:"username"`
	ExternalID string `json:"id"`
}

// Username implements Identity.
func (u *User) Username() string { return u.Name }

// UserFactory returns an IdentityFactory producing *User values whose ids
// are qualified with component.
func UserFactory(component string) IdentityFactory {
	return func(realm, username string) Identity {
		return &User{Realm: realm, Name: username, ExternalID: StorageID(component, username)}
	}
}

// StorageID qualifies username with component. An empty component yields
// the bare username.
func StorageID(component, username string) string {
	if component == "" {
		return username
	}
	return storagePrefix + component + ":" + username
}

// ParseExternalID extracts the username from a realm-qualified id. Ids
// without the f: marker are the username itself. ok is false for a marked
// id with no component separator.
func ParseExternalID(id string) (username string, ok bool) {
	if !strings.HasPrefix(id, storagePrefix) {
		return id, true
	}
	rest := id[len(storagePrefix):]
	i := strings.IndexByte(rest, ':')
	if i < 0 {
		return "", false
	}
	return rest[i+1:], true
}
