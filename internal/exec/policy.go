package exec

import (
	"fmt"
	"strings"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
)

// Policy restricts where plans may run.
type Policy struct {
	// AllowLocal permits the venv runner, which executes the project's test
	// command directly on the host.
	AllowLocal bool `yaml:"allow_local"`
	// ImageAllowlist limits docker images. Entries ending in "*" match by
	// prefix. Empty allows every image.
	ImageAllowlist []string `yaml:"image_allowlist"`
	// Network, when set, is the only docker network mode allowed.
	Network string `yaml:"network"`
}

// DefaultPolicy allows both runners and every image.
func DefaultPolicy() *Policy {
	return &Policy{AllowLocal: true}
}

// Check validates a runner, image and network against the policy. A nil
// policy allows everything.
func (p *Policy) Check(runner, image, network string) error {
	if p == nil {
		return nil
	}

	if runner != "docker" {
		if !p.AllowLocal {
			return policyDenied("local execution not allowed (Docker-only enforced)")
		}
		return nil
	}

	if len(p.ImageAllowlist) > 0 {
		allowed := false
		for _, pattern := range p.ImageAllowlist {
			if matchesImagePattern(image, pattern) {
				allowed = true
				break
			}
		}
		if !allowed {
			return policyDenied(fmt.Sprintf("image not in allowlist: %s", image))
		}
	}

	if p.Network != "" && network != p.Network {
		return policyDenied(fmt.Sprintf("network mode '%s' not allowed (required: '%s')", network, p.Network))
	}

	return nil
}

func policyDenied(msg string) error {
	return perrors.New(perrors.ErrCodeEnvPolicyDenied, "policy violation: "+msg).
		WithSuggestion("Adjust the policy section of .pessimist.yaml or choose another --runner/--image")
}

// matchesImagePattern checks if an image matches a pattern
// Supports exact match and wildcard patterns
func matchesImagePattern(image, pattern string) bool {
	if image == pattern {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(image, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
