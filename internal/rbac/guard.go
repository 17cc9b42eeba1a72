package rbac

// GuardOutcome is the verdict of gating a route on role names.
type GuardOutcome int

const (
	GuardGranted GuardOutcome = iota
	GuardLoading
	GuardRedirectLogin
	GuardDenied
)

func (o GuardOutcome) String() string {
	switch o {
	case GuardGranted:
		return "granted"
	case GuardLoading:
		return "loading"
	case GuardRedirectLogin:
		return "redirect_login"
	case GuardDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decide gates a route for the given state. An empty allowedRoles list admits
// any authenticated user; otherwise one allowed role, raw or slugified, must be
// among the user's role names, raw or slugified.
//
// Loading is reported first only for authenticated callers. Authentication is
// known from the bearer token before any access is resolved, and anonymous
// requests keep the zero (loading) state forever, so they go to login.
func Decide(state AccessState, authenticated bool, allowedRoles []string) GuardOutcome {
	if state.IsLoading() && authenticated {
		return GuardLoading
	}
	if !authenticated {
		return GuardRedirectLogin
	}
	if len(allowedRoles) == 0 {
		return GuardGranted
	}
	owned := make(map[string]struct{}, len(state.Context.AllRoles)*2)
	if state.Status == StatusLoaded {
		for _, r := range state.Context.AllRoles {
			owned[r.Name] = struct{}{}
			if slug := Slugify(r.Name); slug != "" {
				owned[slug] = struct{}{}
			}
		}
	}
	for _, allowed := range allowedRoles {
		if _, ok := owned[allowed]; ok {
			return GuardGranted
		}
		if slug := Slugify(allowed); slug != "" {
			if _, ok := owned[slug]; ok {
				return GuardGranted
			}
		}
	}
	return GuardDenied
}
