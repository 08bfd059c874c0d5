// Package directory performs the LDAP lookups that gate session launches.
//
// A user is looked up in two places: their posix entry under ou=people for
// the numeric UID, and the group entries under ou=group for membership of
// dls_staff, dls_sysadmin and functional_accounts. The results are combined
// into a Record snapshot; records are never cached, every launch request
// performs a fresh lookup.
package directory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-ldap/ldap/v3"

	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
)

// Record is a snapshot of a user's directory state.
type Record struct {
	UID          int  `json:"uid"`
	IsUIDRoot    bool `json:"is_uid_root"`
	IsStaff      bool `json:"is_dls_staff_member"`
	IsSysadmin   bool `json:"is_dls_sysadmin_member"`
	IsFunctional bool `json:"is_functional_accounts_member"`
}

// IsEligible reports whether the user may launch a session: a staff member
// who is not root, not a sysadmin, and not a functional account.
//
// Visit users would also be valid but there is no check for them yet; the
// predicate stays as-is until one exists.
func (r *Record) IsEligible() bool {
	return r.IsStaff && !r.IsUIDRoot && !r.IsSysadmin && !r.IsFunctional
}

// Directory looks up users for eligibility checks. The lifecycle controller
// takes this interface so tests can substitute a fake.
type Directory interface {
	Lookup(ctx context.Context, fedid string) (*Record, error)
}

const (
	peopleBaseDN = "ou=people,dc=diamond,dc=ac,dc=uk"
	groupBaseDN  = "ou=group,dc=diamond,dc=ac,dc=uk"

	staffGroup      = "dls_staff"
	sysadminGroup   = "dls_sysadmin"
	functionalGroup = "functional_accounts"
)

// LDAPDirectory implements Directory against an LDAP server.
type LDAPDirectory struct {
	serverURL string
}

// NewLDAPDirectory creates a directory client for the given LDAP URL.
func NewLDAPDirectory(serverURL string) *LDAPDirectory {
	return &LDAPDirectory{serverURL: serverURL}
}

// Lookup binds to the LDAP server and assembles a fresh Record for fedid.
func (d *LDAPDirectory) Lookup(ctx context.Context, fedid string) (*Record, error) {
	conn, err := ldap.DialURL(d.serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	defer conn.Close()

	// Anonymous bind; the directory permits read access to people and
	// group entries.
	if err := conn.UnauthenticatedBind(""); err != nil {
		return nil, fmt.Errorf("failed LDAP server bind: %w", err)
	}

	record := &Record{}

	uid, err := d.lookupUID(conn, fedid)
	if err != nil {
		return nil, err
	}
	record.UID = uid
	record.IsUIDRoot = uid == 0

	record.IsStaff, err = d.isGroupMember(conn, staffGroup, fedid)
	if err != nil {
		return nil, err
	}
	record.IsSysadmin, err = d.isGroupMember(conn, sysadminGroup, fedid)
	if err != nil {
		return nil, err
	}
	record.IsFunctional, err = d.isGroupMember(conn, functionalGroup, fedid)
	if err != nil {
		return nil, err
	}

	logger.Directory().Info().
		Str("fedid", fedid).
		Int("uid", record.UID).
		Bool("staff", record.IsStaff).
		Bool("sysadmin", record.IsSysadmin).
		Bool("functional", record.IsFunctional).
		Msg("Directory lookup complete")

	return record, nil
}

// lookupUID searches the people tree for the user's uidNumber.
func (d *LDAPDirectory) lookupUID(conn *ldap.Conn, fedid string) (int, error) {
	req := ldap.NewSearchRequest(
		peopleBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(fedid)),
		[]string{"uidNumber"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return 0, fmt.Errorf("uid search failed for %s: %w", fedid, err)
	}
	if len(res.Entries) == 0 {
		return 0, fmt.Errorf("no directory entry for %s", fedid)
	}

	uidNumber := res.Entries[0].GetAttributeValue("uidNumber")
	uid, err := strconv.Atoi(uidNumber)
	if err != nil {
		return 0, fmt.Errorf("unparseable uidNumber %q for %s: %w", uidNumber, fedid, err)
	}
	return uid, nil
}

// isGroupMember checks whether fedid appears in the memberUid attribute of
// the named group.
func (d *LDAPDirectory) isGroupMember(conn *ldap.Conn, group, fedid string) (bool, error) {
	req := ldap.NewSearchRequest(
		groupBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(cn=%s)", ldap.EscapeFilter(group)),
		[]string{"memberUid"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return false, fmt.Errorf("group search failed for %s: %w", group, err)
	}
	if len(res.Entries) == 0 {
		return false, fmt.Errorf("no directory entry for group %s", group)
	}

	for _, member := range res.Entries[0].GetAttributeValues("memberUid") {
		if member == fedid {
			return true, nil
		}
	}
	return false, nil
}
