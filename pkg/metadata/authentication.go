package metadata

import "context"

// AuthContext contains authentication information for ownership checks.
//
// This is passed to every operation that changes an ACL. It contains the
// caller's identity after any identity mapping has been applied.
//
// The Context field should be checked for cancellation at appropriate points
// during long-running operations.
type AuthContext struct {
	// Context carries cancellation signals and deadlines
	Context context.Context

	// AuthMethod is the authentication method used by the caller
	// Examples: "unix", "local"
	AuthMethod string

	// Identity contains the effective caller identity
	// This is what should be used for all ownership checks
	Identity *Identity

	// Capabilities lists the privileges held by the caller in addition to
	// its identity
	Capabilities Capability
}

// Identity represents a caller's Unix identity.
//
// Not all fields need to be populated; anonymous callers have nil UID/GID.
type Identity struct {
	// UID is the user ID
	// nil for anonymous access
	UID *uint32

	// GID is the primary group ID
	// nil for anonymous access
	GID *uint32

	// GIDs is a list of supplementary group IDs
	GIDs []uint32

	// Username is the authenticated username
	// Empty for anonymous access
	Username string
}

// Capability is a set of privileges that override ownership rules.
type Capability uint32

const (
	// CapFowner bypasses the owner check on inode metadata changes.
	CapFowner Capability = 1 << iota
)

// Has reports whether all bits of c are set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// NewUnixAuth returns an AuthContext for a Unix caller.
func NewUnixAuth(ctx context.Context, uid, gid uint32, caps Capability) *AuthContext {
	return &AuthContext{
		Context:      ctx,
		AuthMethod:   "unix",
		Identity:     &Identity{UID: &uid, GID: &gid},
		Capabilities: caps,
	}
}

// ============================================================================
// Authorizer
// ============================================================================

// Authorizer decides whether a caller may change the metadata of an inode.
//
// It is injected into the ACL manager so that deployments can plug their own
// privilege model in.
type Authorizer interface {
	// IsOwnerOrCapable reports whether auth owns ino or holds the capability
	// that overrides ownership.
	IsOwnerOrCapable(auth *AuthContext, ino *Inode) bool
}

// UnixAuthorizer implements Authorizer with the classic Unix rule: the
// caller's uid must equal the inode uid, or the caller must hold CapFowner.
type UnixAuthorizer struct {
	// RootOverride treats uid 0 as holding every capability
	RootOverride bool
}

// IsOwnerOrCapable implements Authorizer.
func (a UnixAuthorizer) IsOwnerOrCapable(auth *AuthContext, ino *Inode) bool {
	if auth == nil || ino == nil {
		return false
	}
	if auth.Capabilities.Has(CapFowner) {
		return true
	}
	if auth.Identity == nil || auth.Identity.UID == nil {
		return false
	}
	uid := *auth.Identity.UID
	if a.RootOverride && uid == 0 {
		return true
	}
	return uid == ino.UID
}
