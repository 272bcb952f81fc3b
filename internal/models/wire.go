// Package models defines transport-facing message types.
package models

// StatusType represents a delivery status for an outbound message.
type StatusType string

// Delivery status constants.
const (
	StatusTypeSent      StatusType = "sent"
	StatusTypeDelivered StatusType = "delivered"
	StatusTypeRead      StatusType = "read"
)

// Receipt records a delivery status event for an outbound message.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// Response is an inbound message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
