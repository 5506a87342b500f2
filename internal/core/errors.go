// Package core defines the error taxonomy shared by the webhook and API
// paths. Handlers map these onto HTTP statuses; everything else wraps them
// with %w and lets errors.Is do the sorting.
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantResolution: a webhook arrived for a phone_number_id with
	// no channel mapping and no default tenant is configured.
	ErrTenantResolution = errors.New("tenant resolution failed")

	// ErrValidation: malformed caller input (empty text, bad id).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound: the entity does not exist within the caller's tenant.
	// Deliberately the same answer whether the row is missing or belongs
	// to another tenant.
	ErrNotFound = errors.New("not found")

	// ErrChannelNotConfigured: the tenant has no outbound channel.
	ErrChannelNotConfigured = errors.New("no whatsapp channel configured")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// ProviderSendError carries what the Cloud API told us when a send
// failed, so the client can show a retry affordance with detail.
type ProviderSendError struct {
	HTTPStatus int
	Body       string
	Err        error
}

func (e *ProviderSendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider send failed: %v", e.Err)
	}
	return fmt.Sprintf("provider send failed: status %d: %s", e.HTTPStatus, e.Body)
}

func (e *ProviderSendError) Unwrap() error { return e.Err }
