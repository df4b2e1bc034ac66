package models

// Message is a single chat message as returned by channel history.
type Message struct {
	ID          string
	Text        string
	TimestampID string
}

// Thread is the daily conversation that links all of one day's updates.
// TimestampID is the handle later replies are anchored to.
type Thread struct {
	ChannelID   string
	TimestampID string
	DateLabel   string
}
