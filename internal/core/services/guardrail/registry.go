package guardrail

import (
	"fmt"
	"sync"

	guardraildomain "evalforge/internal/core/domain/guardrail"
	apperrors "evalforge/pkg/errors"
)

// Registry holds validated, registered policies. Policies once
// registered are read-only; re-registering under the same name is
// rejected (§5 shared-resource policy), matching the original's
// singleton policy-engine global state (§9 design notes).
type Registry struct {
	mu       sync.RWMutex
	policies map[string]guardraildomain.Policy
}

func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]guardraildomain.Policy)}
}

// Register validates and stores policy. Returns the validation
// diagnostics (and a CodePolicyValidationFailed error) without
// registering anything if validation fails, and a
// CodePolicyAlreadyExists error if the name is already registered.
func (r *Registry) Register(policy guardraildomain.Policy) ([]string, error) {
	if diagnostics := ValidatePolicy(policy); len(diagnostics) > 0 {
		return diagnostics, apperrors.NewErrorWithCode(apperrors.CodePolicyValidationFailed, fmt.Sprintf("%d diagnostic(s)", len(diagnostics)))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.policies[policy.Name]; exists {
		return nil, apperrors.NewErrorWithCode(apperrors.CodePolicyAlreadyExists, policy.Name)
	}
	r.policies[policy.Name] = policy
	return nil, nil
}

// Get returns a registered policy by name.
func (r *Registry) Get(name string) (guardraildomain.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[name]
	if !ok {
		return guardraildomain.Policy{}, apperrors.NewErrorWithCode(apperrors.CodePolicyNotFound, name)
	}
	return policy, nil
}

// Names lists every registered policy name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	return names
}
