package context

import "context"

type ContextKey string

var (
	RequestIDKey    = ContextKey("X-Request-Id")
	RouteKey        = ContextKey("X-Route")
	RemoteIPKey     = ContextKey("X-Remote-Ip")
	WorkspaceKeyKey = ContextKey("X-Workspace-Key")
	ActorKey        = ContextKey("X-Actor")
)

// DefaultWorkspace is used when a request does not name a workspace.
const DefaultWorkspace = "all"

// DefaultActor is recorded on audit and ledger entries written without an authenticated caller.
const DefaultActor = "system"

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return getString(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return getString(ctx, RemoteIPKey)
}

func SetWorkspaceKey(ctx context.Context, workspace string) context.Context {
	return context.WithValue(ctx, WorkspaceKeyKey, workspace)
}

// GetWorkspaceKey returns the workspace on the context, or DefaultWorkspace.
func GetWorkspaceKey(ctx context.Context) string {
	if ws := getString(ctx, WorkspaceKeyKey); ws != "" {
		return ws
	}
	return DefaultWorkspace
}

func SetActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor returns the caller recorded on the context, or DefaultActor.
func GetActor(ctx context.Context) string {
	if actor := getString(ctx, ActorKey); actor != "" {
		return actor
	}
	return DefaultActor
}

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}
