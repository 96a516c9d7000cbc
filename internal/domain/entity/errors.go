package entity

import "errors"

var (
	// ErrNoChainConfigured is returned when no active chain covers an entity type and amount
	ErrNoChainConfigured = errors.New("no approval chain configured")

	// ErrInvalidState is returned when an operation is attempted on a request that is not pending,
	// or when a concurrent writer already moved the request
	ErrInvalidState = errors.New("invalid request state")

	// ErrUnauthorized is returned when the actor does not hold the required role or is not the requester
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrNotFound is returned when a request or chain does not exist or is not visible to the tenant
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when the role directory cannot be consulted
	ErrUnavailable = errors.New("role directory unavailable")

	// ErrInvalidArgument is returned for malformed input such as an empty rejection reason
	ErrInvalidArgument = errors.New("invalid argument")
)
