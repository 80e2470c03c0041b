// Package webhook is the WhatsApp Cloud API ingress: it serves the
// verification handshake, authenticates delivery signatures, and hands
// inbound text messages to the conversation loop.
package webhook

import "time"

// Options configures the webhook server.
type Options struct {
	Host string
	Port int

	// VerifyToken answers the GET subscription handshake.
	VerifyToken string

	// AppSecret verifies the X-Hub-Signature-256 header on deliveries.
	// Empty disables signature checking.
	AppSecret string

	// RateLimitPerMinute caps deliveries per sender identity.
	RateLimitPerMinute int

	// HandlerTimeout bounds one conversation turn.
	HandlerTimeout time.Duration
}

// Payload is the envelope of a WhatsApp Cloud API delivery.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one business-account entry in a delivery.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field change inside an entry.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the messages and contacts of a change.
type Value struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []Contact        `json:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []Status         `json:"statuses,omitempty"`
}

// Metadata identifies the receiving business number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender's profile.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is one received message.
type InboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *Text  `json:"text,omitempty"`
}

// Text is the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// Status is a delivery receipt; the server ignores these.
type Status struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
