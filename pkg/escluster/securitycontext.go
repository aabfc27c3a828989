package escluster

import "context"

// Request security headers understood by the cluster-side security plugin.
const (
	headerInjectedRoles = "X-Security-Injected-Roles"
	headerSystemRequest = "X-Security-System-Request"
)

type securityMode int

const (
	modeNone securityMode = iota
	modeInjected
	modeStashed
)

type securityContext struct {
	mode      securityMode
	monitorID string
	roles     []string
}

type securityKey struct{}

// WithInjectedRoles marks requests made with ctx to execute under the given
// monitor's backend roles instead of the client's own identity.
func WithInjectedRoles(ctx context.Context, monitorID string, roles []string) context.Context {
	return context.WithValue(ctx, securityKey{}, securityContext{
		mode:      modeInjected,
		monitorID: monitorID,
		roles:     roles,
	})
}

// WithStashedContext marks requests made with ctx to run as the system,
// bypassing user-context restrictions (and with them the system-index access
// restriction). Any injected roles on the parent context are dropped.
func WithStashedContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, securityKey{}, securityContext{mode: modeStashed})
}

func securityFrom(ctx context.Context) securityContext {
	if ctx == nil {
		return securityContext{}
	}
	if sc, ok := ctx.Value(securityKey{}).(securityContext); ok {
		return sc
	}
	return securityContext{}
}
