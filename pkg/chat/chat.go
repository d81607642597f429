// Package chat is the chat-platform boundary: the event and payload
// types the relay speaks, the client interface, and the Discord
// implementation.
package chat

import "context"

// User is an entry in the platform's identity cache.
type User struct {
	ID   string
	Name string
}

// AttachmentRef points at a file the platform is hosting.
type AttachmentRef struct {
	URL      string
	Filename string
}

// Message is an inbound chat message.
type Message struct {
	Author      User
	Bot         bool
	ChannelID   string
	Content     string
	Attachments []AttachmentRef
}

// MemberEvent is a member joining or leaving the chat community.
// ChannelID is the community's system channel, used as the relay
// destination for the resulting conversation update.
type MemberEvent struct {
	Member    User
	Bot       bool
	ChannelID string
}

// Embed is the richest structured payload the platform renders. One
// embed per outbound message.
type Embed struct {
	Title       string
	Description string
	URL         string
	ImageURL    string
}

// Sendable is one outbound item. Exactly one field is set.
type Sendable struct {
	Text    string
	Embed   *Embed
	FileURL string
}

// Handlers receives platform events. Nil callbacks are skipped.
type Handlers struct {
	OnMessage       func(ctx context.Context, msg Message)
	OnMemberAdded   func(ctx context.Context, ev MemberEvent)
	OnMemberRemoved func(ctx context.Context, ev MemberEvent)
	OnReady         func()
}

// Sender delivers payloads to a channel.
type Sender interface {
	Send(ctx context.Context, channelID string, s Sendable) error
	// Typing shows a transient typing indicator with bounded
	// auto-expiry.
	Typing(ctx context.Context, channelID string) error
}

// IdentityCache resolves platform user ids to display identities.
type IdentityCache interface {
	LookupUser(id string) (User, bool)
}

// Client is a full chat-platform connection.
type Client interface {
	Sender
	IdentityCache
	Name() string
	SetHandlers(h Handlers)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}
