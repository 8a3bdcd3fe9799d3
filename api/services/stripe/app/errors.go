package app

import "errors"

// Typed errors for the Stripe app layer. These enable transport mapping without
// relying on SDK-specific error types at the transport layer.
var (

	// ErrBadEvent indicates the incoming event payload is invalid or missing required fields.
	ErrBadEvent = errors.New("bad event")
	// ErrDatabase indicates a database-related failure.
	ErrDatabase = errors.New("database error")
	// ErrGateway indicates a failure from the Stripe gateway / API calls.
	ErrGateway = errors.New("gateway error")

	// ErrSignature indicates a webhook payload whose signature did not verify.
	ErrSignature = errors.New("invalid signature")

	// ErrPlanMismatch indicates a price or plan that does not belong to the named creator.
	ErrPlanMismatch = errors.New("plan does not belong to creator")

	ErrValidation      = errors.New("invalid request")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)
