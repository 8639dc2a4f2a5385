package evauthz

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownResource and ErrUnknownAction signal a programmer error at a call site.
	ErrUnknownResource = errors.New("evauthz: unknown resource")
	ErrUnknownAction   = errors.New("evauthz: unknown action")

	// ErrIdentityProvisioning matches every *IdentityProvisioningError via errors.Is.
	ErrIdentityProvisioning = errors.New("evauthz: identity provisioning")

	// ErrUserExists is returned by IdentityStore.CreateUserWithTag when the user id is
	// already taken. The tag is left unclaimed.
	ErrUserExists = errors.New("evauthz: user already exists")
)

// ConfigurationError is fatal: a malformed catalog, cyclic inheritance, or an
// organization hierarchy that cannot be resolved while the feature is on.
type ConfigurationError struct {
	Component string
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Component, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErrorf(component, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// InconsistentStateError reports a stored reference that does not resolve, such as a
// connector pointing at a transaction that does not exist.
type InconsistentStateError struct {
	TenantID string
	Entity   Entity
	ID       string
	Detail   string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent state: %s %q in tenant %q: %s", e.Entity, e.ID, e.TenantID, e.Detail)
}

// ProvisionKind tells callers why a badge scan did not yield an authorizable user.
type ProvisionKind string

const (
	ProvisionCreated   ProvisionKind = "created"
	ProvisionRestored  ProvisionKind = "restored"
	ProvisionNotActive ProvisionKind = "not-active"
)

// IdentityProvisioningError is returned when a scan establishes an identity that is not
// yet allowed to act: a new placeholder, a restored user, or an inactive account.
type IdentityProvisioningError struct {
	Kind  ProvisionKind
	TagID string
	User  *User
}

func (e *IdentityProvisioningError) Error() string {
	userID := ""
	if e.User != nil {
		userID = e.User.ID
	}
	switch e.Kind {
	case ProvisionCreated:
		return fmt.Sprintf("tag %q is unknown: saved as inactive user %q", e.TagID, userID)
	case ProvisionRestored:
		return fmt.Sprintf("tag %q belongs to deleted user %q: restored as inactive", e.TagID, userID)
	default:
		status := UserStatus("")
		if e.User != nil {
			status = e.User.Status
		}
		return fmt.Sprintf("tag %q belongs to user %q with status %q", e.TagID, userID, status)
	}
}

func (e *IdentityProvisioningError) Is(target error) bool {
	return target == ErrIdentityProvisioning
}

// AsProvisioning extracts an *IdentityProvisioningError from err.
func AsProvisioning(err error) (*IdentityProvisioningError, bool) {
	var pe *IdentityProvisioningError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
