package domain

import "time"

// Message is a chat message delivered from a tracked channel.
type Message struct {
	Text       string
	ChannelRef string
	SentAt     time.Time
}
