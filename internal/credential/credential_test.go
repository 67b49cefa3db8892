package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExternalID(t *testing.T) {
	tests := []struct {
		id   string
		want string
		ok   bool
	}{
		{"f:8d1c2b:alice", "alice", true},
		{"f:comp:user:with:colons", "user:with:colons", true},
		{"f::bob", "bob", true},
		{"alice", "alice", true},
		{"", "", true},
		{"f:nocomponent", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := ParseExternalID(tt.id)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStorageID(t *testing.T) {
	assert.Equal(t, "f:comp:alice", StorageID("comp", "alice"))
	assert.Equal(t, "alice", StorageID("", "alice"))

	got, ok := ParseExternalID(StorageID("comp", "alice"))
	assert.True(t, ok)
	assert.Equal(t, "alice", got)
}

func TestUserFactory(t *testing.T) {
	ident := UserFactory("comp")("acme", "alice")
	u, ok := ident.(*User)
	if assert.True(t, ok) {
		assert.Equal(t, "acme", u.Realm)
		assert.Equal(t, "alice", u.Username())
		assert.Equal(t, "f:comp:alice", u.ExternalID)
	}
}
