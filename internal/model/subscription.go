package model

import "strings"

// SubscriptionKeys carries the encryption material a browser hands out with its subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is one browser/device channel on the push gateway.
// Endpoint is the unique key.
type PushSubscription struct {
	Endpoint       string           `json:"endpoint"`
	ExpirationTime *int64           `json:"expirationTime,omitempty"`
	Keys           SubscriptionKeys `json:"keys"`
}

// Valid reports whether the subscription carries an endpoint.
func (s PushSubscription) Valid() bool {
	return strings.TrimSpace(s.Endpoint) != ""
}

// SameKeys reports whether both subscriptions carry identical key material.
func (s PushSubscription) SameKeys(other PushSubscription) bool {
	return s.Keys == other.Keys
}

// SubscriptionView hides the endpoint when listing subscriptions to admins.
type SubscriptionView struct {
	Endpoint string `json:"endpoint"`
	Gateway  string `json:"gateway"`
	HasKeys  bool   `json:"hasKeys"`
}
