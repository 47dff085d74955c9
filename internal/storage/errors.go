package storage

import "errors"

// ErrInvalidSubscription is returned when a subscription has no endpoint.
var ErrInvalidSubscription = errors.New("subscription endpoint is required")
