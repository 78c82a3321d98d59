package hooks

import (
	"os"

	"github.com/dara-forge/forge/pkg/errors"
)

// LoadScriptClassifier reads and compiles a classifier script.
func LoadScriptClassifier(path string) (*ScriptClassifier, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrHookLoad, "reading classifier %s: %v", path, err)
	}
	return NewScriptClassifier(string(content))
}

// LoadHookFile registers the script at path as hookType. An empty path is a no-op.
func LoadHookFile(manager HookManager, hookType HookType, path string) error {
	if path == "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(errors.ErrHookLoad, "reading hook %s: %v", path, err)
	}
	if err := manager.AddHook(Hook{Type: hookType, Content: string(content)}); err != nil {
		return errors.Wrapf(err, "error adding hook %s", hookType)
	}
	return nil
}

// HookTemplate returns a starter script for hookType.
func HookTemplate(hookType HookType) string {
	switch hookType {
	case PostRetrieve:
		return `// Post-retrieve hook
// Runs after content was retrieved. Failures are logged and never change the result.
// Available variables:
// - root: string - content fingerprint
// - endpoint: string - endpoint that served the content
// - name: string - requested file name, may be empty
// - size: int - content length in bytes
// - verified: bool - whether the content matched an expected fingerprint
//
// Assign a non-empty string to err to report a problem.
err := ""
/*
if !verified {
    err = "unverified content for " + root
}
*/`
	default:
		return "// Unknown hook type: " + string(hookType)
	}
}

// ClassifierTemplate returns a starter classifier script.
func ClassifierTemplate() string {
	return `// Response classifier
// Runs for 2xx responses with a JSON content type.
// Available variables: status (int), contentType (string), body (string).
// Assign result = "available", "not_found" or "transient"; leave it empty to defer.
text := import("text")
if text.contains(body, "\"pending\"") {
    result = "not_found"
}`
}
