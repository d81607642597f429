package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Discord is the production chat client, backed by a single discordgo
// gateway session.
type Discord struct {
	session  *discordgo.Session
	handlers Handlers
	typing   *TypingIndicator
	log      zerolog.Logger
	running  atomic.Bool

	mu    sync.RWMutex
	users map[string]User
}

var _ Client = (*Discord)(nil)

// NewDiscord builds the client from the bot secret. The session is not
// opened until Start.
func NewDiscord(secret string, typingExpiry time.Duration, log zerolog.Logger) (*Discord, error) {
	if secret == "" {
		return nil, fmt.Errorf("discord bot secret not set")
	}
	session, err := discordgo.New("Bot " + secret)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	d := &Discord{
		session: session,
		log:     log.With().Str("component", "discord").Logger(),
		users:   make(map[string]User),
	}
	// Discord clears its own typing indicator, so no stop signal is
	// needed; the indicator here only bounds local state.
	d.typing = NewTypingIndicator(typingExpiry, nil)
	return d, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) SetHandlers(h Handlers) { d.handlers = h }

func (d *Discord) IsRunning() bool { return d.running.Load() }

func (d *Discord) Start(ctx context.Context) error {
	d.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.log.Info().Str("user", r.User.Username).Msg("connected to discord")
		for _, g := range r.Guilds {
			d.log.Debug().Str("guild", g.ID).Msg("guild available")
		}
		if d.handlers.OnReady != nil {
			d.handlers.OnReady()
		}
	})
	d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		d.onMessage(ctx, m)
	})
	d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		d.onMemberChange(ctx, m.Member, true)
	})
	d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
		d.onMemberChange(ctx, m.Member, false)
	})

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	d.running.Store(true)
	return nil
}

func (d *Discord) Stop(_ context.Context) error {
	d.running.Store(false)
	d.typing.StopAll()
	return d.session.Close()
}

func (d *Discord) onMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || d.handlers.OnMessage == nil {
		return
	}
	d.cacheUser(User{ID: m.Author.ID, Name: m.Author.Username})

	msg := Message{
		Author:    User{ID: m.Author.ID, Name: m.Author.Username},
		Bot:       m.Author.Bot,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	for _, att := range m.Attachments {
		url := att.ProxyURL
		if url == "" {
			url = att.URL
		}
		msg.Attachments = append(msg.Attachments, AttachmentRef{
			URL:      url,
			Filename: att.Filename,
		})
	}
	d.handlers.OnMessage(ctx, msg)
}

func (d *Discord) onMemberChange(ctx context.Context, m *discordgo.Member, added bool) {
	if m == nil || m.User == nil {
		return
	}
	user := User{ID: m.User.ID, Name: memberDisplayName(m)}
	if added {
		d.cacheUser(user)
	} else {
		d.evictUser(user.ID)
	}

	ev := MemberEvent{
		Member:    user,
		Bot:       m.User.Bot,
		ChannelID: d.systemChannel(m.GuildID),
	}
	if added && d.handlers.OnMemberAdded != nil {
		d.handlers.OnMemberAdded(ctx, ev)
	}
	if !added && d.handlers.OnMemberRemoved != nil {
		d.handlers.OnMemberRemoved(ctx, ev)
	}
}

// systemChannel returns the guild's system channel id, the destination
// for membership updates.
func (d *Discord) systemChannel(guildID string) string {
	guild, err := d.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return ""
	}
	return guild.SystemChannelID
}

func memberDisplayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.User.Username
}

func (d *Discord) cacheUser(u User) {
	if u.ID == "" {
		return
	}
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *Discord) evictUser(id string) {
	d.mu.Lock()
	delete(d.users, id)
	d.mu.Unlock()
}

// LookupUser resolves a user id against the locally cached identities.
func (d *Discord) LookupUser(id string) (User, bool) {
	d.mu.RLock()
	u, ok := d.users[id]
	d.mu.RUnlock()
	return u, ok
}

// Send delivers one sendable to a channel. Discord allows one rich
// embed per message, which is why translation flattens carousels.
func (d *Discord) Send(_ context.Context, channelID string, s Sendable) error {
	switch {
	case s.Embed != nil:
		embed := &discordgo.MessageEmbed{
			Title:       s.Embed.Title,
			Description: s.Embed.Description,
			URL:         s.Embed.URL,
		}
		if s.Embed.ImageURL != "" {
			embed.Image = &discordgo.MessageEmbedImage{URL: s.Embed.ImageURL}
		}
		_, err := d.session.ChannelMessageSendEmbed(channelID, embed)
		return err
	case s.FileURL != "":
		_, err := d.session.ChannelMessageSend(channelID, s.FileURL)
		return err
	default:
		_, err := d.session.ChannelMessageSend(channelID, s.Text)
		return err
	}
}

// Typing shows the platform typing indicator. Discord expires it on its
// own; the local indicator bounds our bookkeeping to the configured
// window.
func (d *Discord) Typing(_ context.Context, channelID string) error {
	d.typing.Trigger(channelID)
	return d.session.ChannelTyping(channelID)
}
