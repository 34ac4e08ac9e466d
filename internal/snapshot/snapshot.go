package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
	"time"
)

// ErrUnreadable is returned when a path cannot be read or does not exist
var ErrUnreadable = errors.New("path unreadable or missing")

// Snapshot captures the current content and metadata of a path
type Snapshot struct {
	Digest     string    // hex sha256 of the content
	Owner      string    // owning user name, numeric uid if unresolvable
	Group      string    // owning group name, numeric gid if unresolvable
	Permission string    // octal permission string, e.g. "644"
	ModTime    time.Time
	RawData    []byte
}

// Provider produces snapshots of filesystem paths
type Provider interface {
	Take(path string) (*Snapshot, error)
}

// OSProvider reads snapshots from the local filesystem
type OSProvider struct{}

// NewOSProvider creates a new filesystem snapshot provider
func NewOSProvider() *OSProvider {
	return &OSProvider{}
}

// Take reads the content and metadata of path
func (p *OSProvider) Take(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	owner, group := ownership(info)

	return &Snapshot{
		Digest:     Digest(data),
		Owner:      owner,
		Group:      group,
		Permission: strconv.FormatUint(uint64(info.Mode().Perm()), 8),
		ModTime:    info.ModTime(),
		RawData:    data,
	}, nil
}

// Digest returns the hex sha256 digest of data
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ownership resolves the owning user and group names of a file, falling back
// to numeric IDs when the names cannot be resolved
func ownership(info os.FileInfo) (string, string) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", ""
	}

	owner := strconv.FormatUint(uint64(st.Uid), 10)
	group := strconv.FormatUint(uint64(st.Gid), 10)

	if u, err := user.LookupId(owner); err == nil {
		owner = u.Username
	}
	if g, err := user.LookupGroupId(group); err == nil {
		group = g.Name
	}

	return owner, group
}
