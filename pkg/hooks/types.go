package hooks

// HookType names a point where a script may run.
type HookType string

// Supported hook types.
const (
	// PostRetrieve runs after content was retrieved, and verified when a fingerprint was expected.
	PostRetrieve HookType = "post-retrieve"
)

// Hook is a script bound to a hook type.
type Hook struct {
	Type    HookType
	Content string
}

// HookContext is what a hook script can see.
type HookContext struct {
	Root     string
	Endpoint string
	Name     string
	Size     int64
	Verified bool
	Vars     map[string]interface{}
}

// HookManager registers and runs hook scripts.
type HookManager interface {
	Execute(hookType HookType, ctx HookContext) error
	AddHook(hook Hook) error
	RemoveHook(hookType HookType) error
	HasHook(hookType HookType) bool
}
