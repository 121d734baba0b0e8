package validation

import (
	"context"
	"fmt"

	"uplink/internal/uplink/domain"
)

// Gate checks a descriptor against a policy before transfer. Ordinary
// policy violations come back as a failing Verdict; an error is reserved
// for infrastructure problems (domain.ErrValidatorUnavailable).
type Gate interface {
	Validate(ctx context.Context, d domain.Descriptor, policy domain.Policy) (domain.Verdict, error)
}

// Ensure PolicyGate implements Gate
var _ Gate = (*PolicyGate)(nil)

// PolicyGate is the built-in Gate: size, MIME type, and category checks
// driven entirely by the supplied policy.
type PolicyGate struct{}

func NewPolicyGate() *PolicyGate {
	return &PolicyGate{}
}

func (g *PolicyGate) Validate(ctx context.Context, d domain.Descriptor, policy domain.Policy) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrValidatorUnavailable, err)
	}

	var violated []string

	if d.URI == "" {
		violated = append(violated, "file has no source location")
	}
	if d.Name == "" {
		violated = append(violated, "file has no name")
	}
	if d.Size <= 0 {
		violated = append(violated, "file is empty")
	}
	if policy.MaxFileSizeBytes > 0 && d.Size > policy.MaxFileSizeBytes {
		violated = append(violated, fmt.Sprintf("file exceeds maximum size of %d bytes", policy.MaxFileSizeBytes))
	}
	if !policy.AllowsMIME(d.MIMEType) {
		violated = append(violated, fmt.Sprintf("file type %q is not allowed", d.MIMEType))
	}
	if !policy.AllowsCategory(d.Category) {
		violated = append(violated, fmt.Sprintf("category %q is not allowed", d.Category))
	}

	return domain.Verdict{
		IsValid:       len(violated) == 0,
		ViolatedRules: violated,
	}, nil
}
