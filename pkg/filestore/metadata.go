package filestore

import "time"

// ACLEntry grants a non-owner user read and/or write access to a file.
type ACLEntry struct {
	User     string `json:"user"`
	CanRead  bool   `json:"can_read"`
	CanWrite bool   `json:"can_write"`
}

// Metadata is the persisted, non-content state of a file.
type Metadata struct {
	Owner          string     `json:"owner"`
	Created        time.Time  `json:"created"`
	Modified       time.Time  `json:"modified"`
	Accessed       time.Time  `json:"accessed"`
	LastAccessUser string     `json:"last_access_user"`
	ACL            []ACLEntry `json:"acl"`
}

// FindACL returns the ACL entry for user, or nil if none exists.
func (m *Metadata) FindACL(user string) *ACLEntry {
	for i := range m.ACL {
		if m.ACL[i].User == user {
			return &m.ACL[i]
		}
	}
	return nil
}

// CanRead reports whether user may read the file: the owner, or any user
// with a read-granting ACL entry.
func (m *Metadata) CanRead(user string) bool {
	if user == m.Owner {
		return true
	}
	if e := m.FindACL(user); e != nil {
		return e.CanRead
	}
	return false
}

// CanWrite reports whether user may write the file.
func (m *Metadata) CanWrite(user string) bool {
	if user == m.Owner {
		return true
	}
	if e := m.FindACL(user); e != nil {
		return e.CanWrite
	}
	return false
}

// UpsertACL adds or updates the ACL entry for user with the given
// read/write mode.
func (m *Metadata) UpsertACL(user string, canRead, canWrite bool) {
	if e := m.FindACL(user); e != nil {
		e.CanRead = canRead
		e.CanWrite = canWrite
		return
	}
	m.ACL = append(m.ACL, ACLEntry{User: user, CanRead: canRead, CanWrite: canWrite})
}

// RemoveACL deletes the ACL entry for user. Reports whether an entry was
// removed.
func (m *Metadata) RemoveACL(user string) bool {
	for i := range m.ACL {
		if m.ACL[i].User == user {
			m.ACL = append(m.ACL[:i], m.ACL[i+1:]...)
			return true
		}
	}
	return false
}
