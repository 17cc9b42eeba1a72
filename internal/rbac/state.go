package rbac

import "context"

// Status tags the lifecycle of a user's access resolution.
type Status int

const (
	StatusLoading Status = iota
	StatusLoaded
	StatusFetchFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

// AccessState is the session-scoped result of resolving a user's access.
// A failed fetch is kept distinct from a user that genuinely has no roles.
type AccessState struct {
	Status  Status
	Context AccessContext
	Err     error
}

// Loading returns the initial state before resolution completes.
func Loading() AccessState {
	return AccessState{Status: StatusLoading}
}

// Loaded wraps a resolved context.
func Loaded(ac AccessContext) AccessState {
	return AccessState{Status: StatusLoaded, Context: ac}
}

// FetchFailed records a resolution failure with an empty context.
func FetchFailed(userID string, err error) AccessState {
	return AccessState{Status: StatusFetchFailed, Context: AccessContext{UserID: userID}, Err: err}
}

// IsLoading reports whether resolution is still pending.
func (s AccessState) IsLoading() bool {
	return s.Status == StatusLoading
}

// HasPermission degrades to false unless the state is loaded.
func (s AccessState) HasPermission(module, action string) bool {
	if s.Status != StatusLoaded {
		return false
	}
	return s.Context.HasPermission(module, action)
}

// HasRole returns false while loading to avoid acting on partial data.
func (s AccessState) HasRole(name string) bool {
	if s.Status != StatusLoaded {
		return false
	}
	return s.Context.hasRole(name)
}

// IsTeamUser reports whether the loaded context holds a staff role.
func (s AccessState) IsTeamUser() bool {
	return s.Status == StatusLoaded && s.Context.IsTeamUser()
}

// IsClientUser reports whether the loaded context holds client roles only.
func (s AccessState) IsClientUser() bool {
	return s.Status == StatusLoaded && s.Context.IsClientUser()
}

// IsSuperAdmin reports whether the loaded context holds the Super Admin role.
func (s AccessState) IsSuperAdmin() bool {
	return s.Status == StatusLoaded && s.Context.IsSuperAdmin()
}

type accessContextKey struct{}

// ContextWithAccess stores the resolved state in the request context.
func ContextWithAccess(ctx context.Context, s AccessState) context.Context {
	return context.WithValue(ctx, accessContextKey{}, s)
}

// AccessFromContext returns the request's state, or Loading when none was resolved.
func AccessFromContext(ctx context.Context) AccessState {
	s, ok := ctx.Value(accessContextKey{}).(AccessState)
	if !ok {
		return Loading()
	}
	return s
}
