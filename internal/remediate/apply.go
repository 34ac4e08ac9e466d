package remediate

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/confsentinel/sentinel/internal/models"
)

// Applier writes an enrolled baseline back to disk
type Applier interface {
	// Apply fully recreates the file: content, permission, and ownership
	Apply(path string, snap *models.EnrolledSnapshot) error

	// ApplyMetadata restores permission and ownership without touching content
	ApplyMetadata(path string, snap *models.EnrolledSnapshot) error
}

// FSApplier restores files on the local filesystem
type FSApplier struct{}

// NewFSApplier creates a filesystem applier
func NewFSApplier() *FSApplier {
	return &FSApplier{}
}

// Apply rewrites the file content from the baseline and restores its metadata
func (a *FSApplier) Apply(path string, snap *models.EnrolledSnapshot) error {
	mode, err := parsePermission(snap.Permission)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, snap.RawData, mode); err != nil {
		return fmt.Errorf("failed to rewrite %s: %v", path, err)
	}

	// WriteFile only applies the mode on creation
	return a.ApplyMetadata(path, snap)
}

// ApplyMetadata restores ownership and permission from the baseline
func (a *FSApplier) ApplyMetadata(path string, snap *models.EnrolledSnapshot) error {
	mode, err := parsePermission(snap.Permission)
	if err != nil {
		return err
	}

	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("failed to restore permission of %s: %v", path, err)
	}

	uid, gid, err := resolveIDs(snap.Owner, snap.Group)
	if err != nil {
		return err
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("failed to restore ownership of %s: %v", path, err)
	}

	return nil
}

// parsePermission converts an octal permission string such as "644"
func parsePermission(perm string) (os.FileMode, error) {
	n, err := strconv.ParseUint(perm, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid permission string %q: %v", perm, err)
	}
	return os.FileMode(n), nil
}

// resolveIDs maps owner and group names to numeric IDs, accepting raw
// numeric strings for entries without a passwd/group record
func resolveIDs(owner, group string) (int, int, error) {
	uidStr := owner
	if u, err := user.Lookup(owner); err == nil {
		uidStr = u.Uid
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot resolve owner %q", owner)
	}

	gidStr := group
	if g, err := user.LookupGroup(group); err == nil {
		gidStr = g.Gid
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot resolve group %q", group)
	}

	return uid, gid, nil
}
