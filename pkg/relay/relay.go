// Package relay wires the chat platform to the Direct Line protocol:
// chat events become posted activities, and inbound stream activities
// become chat sends.
package relay

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/dlbridge/pkg/chat"
	"github.com/tinyland-inc/dlbridge/pkg/directline"
	"github.com/tinyland-inc/dlbridge/pkg/registry"
	"github.com/tinyland-inc/dlbridge/pkg/translate"
	"github.com/tinyland-inc/dlbridge/pkg/transport"
)

// Options wires the relay's collaborators.
type Options struct {
	Chat       chat.Client
	DirectLine *directline.Client
	Registry   *registry.Registry
	Transport  *transport.Manager
	Logger     zerolog.Logger
}

// Relay is the top-level coordinator.
type Relay struct {
	chat      chat.Client
	dl        *directline.Client
	registry  *registry.Registry
	transport *transport.Manager
	log       zerolog.Logger
}

func New(opts Options) *Relay {
	r := &Relay{
		chat:      opts.Chat,
		dl:        opts.DirectLine,
		registry:  opts.Registry,
		transport: opts.Transport,
		log:       opts.Logger.With().Str("component", "relay").Logger(),
	}
	r.transport.Bind(r.HandleActivity, r.HandleTransportClosed)
	return r
}

// Run starts the chat client and relays until the context is cancelled
// or a termination signal arrives.
func (r *Relay) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.chat.SetHandlers(chat.Handlers{
		OnMessage:       r.HandleChatMessage,
		OnMemberAdded:   func(ctx context.Context, ev chat.MemberEvent) { r.HandleMemberEvent(ctx, ev, true) },
		OnMemberRemoved: func(ctx context.Context, ev chat.MemberEvent) { r.HandleMemberEvent(ctx, ev, false) },
		OnReady:         func() { r.log.Info().Msg("chat platform ready") },
	})

	if err := r.chat.Start(ctx); err != nil {
		return err
	}
	r.log.Info().Msg("relay running")

	<-ctx.Done()
	r.log.Info().Msg("shutting down")
	r.transport.CloseAll()
	return r.chat.Stop(context.Background())
}

// HandleChatMessage relays one inbound chat message to the protocol
// side. Failures are logged and the event dropped; delivery is
// at-most-once and one conversation's failure never affects others.
func (r *Relay) HandleChatMessage(ctx context.Context, msg chat.Message) {
	if msg.Bot {
		return
	}
	log := r.log.With().Str("channel_id", msg.ChannelID).Logger()

	rec, err := r.EnsureConversation(ctx, msg.ChannelID)
	if err != nil {
		log.Error().Err(err).Msg("resolving conversation, dropping message")
		return
	}

	activity := translate.ToActivity(msg, r.chat.LookupUser)
	activity.ID = uuid.NewString()
	if _, err := r.dl.PostActivity(ctx, rec.ConversationID(), &activity); err != nil {
		log.Error().Err(err).Str("conversation_id", rec.ConversationID()).Msg("posting activity, dropping message")
	}
}

// HandleMemberEvent posts a conversationUpdate for a member joining or
// leaving, addressed to the community's system channel.
func (r *Relay) HandleMemberEvent(ctx context.Context, ev chat.MemberEvent, added bool) {
	if ev.Bot {
		return
	}
	if ev.ChannelID == "" {
		r.log.Debug().Str("member_id", ev.Member.ID).Msg("member event without a system channel, dropping")
		return
	}
	log := r.log.With().Str("channel_id", ev.ChannelID).Logger()

	rec, err := r.EnsureConversation(ctx, ev.ChannelID)
	if err != nil {
		log.Error().Err(err).Msg("resolving conversation, dropping member event")
		return
	}

	activity := translate.MemberUpdate(ev, added)
	activity.ID = uuid.NewString()
	if _, err := r.dl.PostActivity(ctx, rec.ConversationID(), &activity); err != nil {
		log.Error().Err(err).Msg("posting member update")
	}
}

// EnsureConversation returns the record for a channel, creating the
// protocol conversation on first contact, and guarantees an open
// transport session. A conversation whose transport is down is renewed
// for a fresh stream URL before reopening; stale URLs are never reused.
func (r *Relay) EnsureConversation(ctx context.Context, channelID string) (*registry.ConversationRecord, error) {
	rec, err := r.registry.Resolve(ctx, channelID, "")
	switch {
	case errors.Is(err, registry.ErrNotFound):
		conv, err := r.dl.CreateConversation(ctx)
		if err != nil {
			return nil, err
		}
		rec, err = r.registry.Create(ctx, conv.ConversationID, channelID)
		if err != nil {
			return nil, err
		}
		// A concurrent first contact may have won the channel; only
		// carry the stream URL over when this conversation is the one
		// that was recorded.
		if rec.ConversationID() == conv.ConversationID {
			rec.StreamURL = conv.StreamURL
		}
	case err != nil:
		return nil, err
	}

	if !r.transport.IsOpen(rec.ConversationID()) {
		streamURL := rec.StreamURL
		if streamURL == "" {
			conv, err := r.dl.RenewConversation(ctx, rec.ConversationID())
			if err != nil {
				return nil, err
			}
			streamURL = conv.StreamURL
			rec.StreamURL = streamURL
		}
		if err := r.transport.Open(ctx, rec.ConversationID(), streamURL); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// HandleActivity is the transport dispatch target: one inbound,
// echo-filtered activity routed back to its chat channel.
func (r *Relay) HandleActivity(conversationID string, activity directline.Activity) {
	ctx := context.Background()
	log := r.log.With().Str("conversation_id", conversationID).Logger()

	rec, err := r.registry.Resolve(ctx, "", conversationID)
	if err != nil {
		log.Error().Err(err).Msg("no channel mapping for inbound activity, dropping")
		return
	}
	channelID := rec.ChannelID()

	if activity.Type == directline.TypeDeleteUserData {
		// The protocol supplies no recipient, so there is no per-user
		// state to delete.
		log.Warn().Msg("deleteUserData activity not supported, dropping")
		return
	}

	payload := translate.ToChatPayload(activity)
	for _, diag := range payload.Diagnostics {
		log.Warn().Str("channel_id", channelID).Msg(diag)
	}

	if payload.Typing {
		if err := r.chat.Typing(ctx, channelID); err != nil {
			log.Error().Err(err).Str("channel_id", channelID).Msg("sending typing indicator")
		}
		return
	}

	for _, sendable := range payload.Sendables {
		if err := r.chat.Send(ctx, channelID, sendable); err != nil {
			log.Error().Err(err).Str("channel_id", channelID).Msg("sending to chat channel")
		}
	}
}

// HandleTransportClosed is the transport's eviction notice. The next
// event for the conversation renews and reopens; nothing happens here
// beyond logging.
func (r *Relay) HandleTransportClosed(conversationID string) {
	r.log.Info().Str("conversation_id", conversationID).Msg("transport closed, will renew on next event")
}
