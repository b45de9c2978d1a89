package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataOwnerAlwaysHasFullAccess(t *testing.T) {
	m := Metadata{Owner: "alice"}
	assert.True(t, m.CanRead("alice"))
	assert.True(t, m.CanWrite("alice"))
}

func TestMetadataNonOwnerWithoutACLDenied(t *testing.T) {
	m := Metadata{Owner: "alice"}
	assert.False(t, m.CanRead("bob"))
	assert.False(t, m.CanWrite("bob"))
}

func TestMetadataUpsertACLGrantsAccess(t *testing.T) {
	m := Metadata{Owner: "alice"}
	m.UpsertACL("bob", true, false)
	assert.True(t, m.CanRead("bob"))
	assert.False(t, m.CanWrite("bob"))
}

func TestMetadataUpsertACLUpdatesExisting(t *testing.T) {
	m := Metadata{Owner: "alice"}
	m.UpsertACL("bob", true, false)
	m.UpsertACL("bob", true, true)
	assert.Len(t, m.ACL, 1)
	assert.True(t, m.CanWrite("bob"))
}

func TestMetadataRemoveACL(t *testing.T) {
	m := Metadata{Owner: "alice"}
	m.UpsertACL("bob", true, true)
	assert.True(t, m.RemoveACL("bob"))
	assert.False(t, m.CanRead("bob"))
	assert.False(t, m.RemoveACL("bob"))
}
