package hooks

import (
	"fmt"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/gateway"
)

// classifierModules excludes os: classifier scripts only look at the response.
var classifierModules = []string{"fmt", "strings", "text", "json"}

// ScriptClassifier is a gateway.BodyClassifier backed by a Tengo script.
// The script sees status, contentType and body, and assigns result one of
// "available", "not_found", "transient", or leaves it empty to defer.
type ScriptClassifier struct {
	compiled *tengo.Compiled
}

var _ gateway.BodyClassifier = (*ScriptClassifier)(nil)

// NewScriptClassifier compiles src once; each Classify runs a clone.
func NewScriptClassifier(src string) (*ScriptClassifier, error) {
	s := tengo.NewScript([]byte(src))
	s.SetImports(stdlib.GetModuleMap(classifierModules...))
	for name, zero := range map[string]interface{}{
		"status":      0,
		"contentType": "",
		"body":        "",
		"result":      "",
	} {
		if err := s.Add(name, zero); err != nil {
			return nil, fmt.Errorf("failed to add variable '%s' to script: %w", name, err)
		}
	}
	compiled, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrHookLoad, err)
	}
	return &ScriptClassifier{compiled: compiled}, nil
}

// Classify implements gateway.BodyClassifier. Script failures defer to other classifiers.
func (c *ScriptClassifier) Classify(statusCode int, contentType string, body []byte) gateway.Verdict {
	run := c.compiled.Clone()
	for name, v := range map[string]interface{}{
		"status":      statusCode,
		"contentType": contentType,
		"body":        string(body),
	} {
		if err := run.Set(name, v); err != nil {
			logger.Warn("classifier script setup failed", logger.Fields{"error": err.Error()})
			return gateway.VerdictUnknown
		}
	}
	if err := run.Run(); err != nil {
		logger.Warn("classifier script failed", logger.Fields{"error": err.Error()})
		return gateway.VerdictUnknown
	}

	switch result := run.Get("result").String(); result {
	case "available":
		return gateway.VerdictAvailable
	case "not_found":
		return gateway.VerdictNotFound
	case "transient":
		return gateway.VerdictTransient
	case "":
		return gateway.VerdictUnknown
	default:
		logger.Debug("classifier script returned unknown result", logger.Fields{"result": result})
		return gateway.VerdictUnknown
	}
}
