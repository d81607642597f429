// Package translate maps between chat-platform messages and Direct Line
// activities in both directions. Everything here is a pure function:
// unrenderable content degrades to plain text or is dropped with a
// diagnostic, never an error.
package translate

import (
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/tinyland-inc/dlbridge/pkg/chat"
	"github.com/tinyland-inc/dlbridge/pkg/directline"
)

// octetStream is the fallback when no MIME type can be inferred.
const octetStream = "application/octet-stream"

var (
	mentionPattern = regexp.MustCompile(`<@!?\d{17,20}>`)
	idPattern      = regexp.MustCompile(`\d{17,20}`)
	// Discord serves attachments from its CDN; the filename is the last
	// path segment.
	cdnPattern = regexp.MustCompile(`^https://(?:media\.discordapp\.net|cdn\.discordapp\.com)/attachments/\d+/\d+/(.+)$`)
)

// ToActivity converts an inbound chat message to a message activity.
// Mention tokens resolve to display names through the identity cache;
// unresolved tokens are preserved verbatim.
func ToActivity(msg chat.Message, resolve func(id string) (chat.User, bool)) directline.Activity {
	activity := directline.Activity{
		Type: directline.TypeMessage,
		From: directline.ChannelAccount{
			ID:   msg.Author.ID,
			Name: msg.Author.Name,
		},
		Text: ResolveMentions(msg.Content, resolve),
	}
	for _, att := range msg.Attachments {
		name := att.Filename
		if name == "" {
			name = AttachmentFilename(att.URL)
		}
		activity.Attachments = append(activity.Attachments, directline.Attachment{
			ContentType: ContentType(name),
			ContentURL:  att.URL,
			Name:        name,
		})
	}
	return activity
}

// MemberUpdate converts a membership event to a conversationUpdate
// activity.
func MemberUpdate(ev chat.MemberEvent, added bool) directline.Activity {
	account := directline.ChannelAccount{ID: ev.Member.ID, Name: ev.Member.Name}
	activity := directline.Activity{
		Type: directline.TypeConversationUpdate,
		From: account,
	}
	if added {
		activity.MembersAdded = []directline.ChannelAccount{account}
	} else {
		activity.MembersRemoved = []directline.ChannelAccount{account}
	}
	return activity
}

// ResolveMentions replaces platform mention tokens with cached display
// names. A token with no cached identity stays as-is.
func ResolveMentions(content string, resolve func(id string) (chat.User, bool)) string {
	if resolve == nil {
		return content
	}
	return mentionPattern.ReplaceAllStringFunc(content, func(token string) string {
		id := idPattern.FindString(token)
		if user, ok := resolve(id); ok && user.Name != "" {
			return user.Name
		}
		return token
	})
}

// AttachmentFilename extracts the filename from a platform CDN URL.
func AttachmentFilename(url string) string {
	if m := cdnPattern.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	// As a last resort take the final path segment, query stripped.
	trimmed, _, _ := strings.Cut(url, "?")
	if name := path.Base(trimmed); name != "." && name != "/" {
		return name
	}
	return ""
}

// ContentType infers a MIME type from a filename, falling back to a
// generic binary type.
func ContentType(filename string) string {
	if ext := path.Ext(filename); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			// Strip charset parameters; the protocol wants bare types.
			bare, _, _ := strings.Cut(ct, ";")
			return strings.TrimSpace(bare)
		}
	}
	return octetStream
}

// Payload is the chat-side rendering of one activity: an ordered
// sequence of sendables plus any degradation diagnostics.
type Payload struct {
	Typing      bool
	Sendables   []chat.Sendable
	Diagnostics []string
}

// ToChatPayload renders an activity for the chat platform. Text comes
// first when present; each attachment becomes its own sendable because
// the platform permits one rich attachment per message. Carousel
// layouts therefore flatten to a sequence.
func ToChatPayload(activity directline.Activity) Payload {
	var p Payload

	if activity.Type == directline.TypeTyping {
		p.Typing = true
		return p
	}

	if activity.Text != "" {
		p.Sendables = append(p.Sendables, chat.Sendable{Text: activity.Text})
	}

	if activity.AttachmentLayout == directline.LayoutCarousel && len(activity.Attachments) > 1 {
		p.diag("carousel layout flattened to %d individual messages", len(activity.Attachments))
	}

	for _, att := range activity.Attachments {
		p.renderAttachment(att)
	}
	return p
}

func (p *Payload) diag(format string, args ...any) {
	p.Diagnostics = append(p.Diagnostics, fmt.Sprintf(format, args...))
}

func (p *Payload) renderAttachment(att directline.Attachment) {
	if kind, isCard := directline.ParseCardKind(att.ContentType); isCard {
		p.renderCard(kind, att)
		return
	}

	switch {
	case strings.HasPrefix(att.ContentType, "image/"):
		p.Sendables = append(p.Sendables, chat.Sendable{
			Embed: &chat.Embed{ImageURL: att.ContentURL},
		})
	case strings.HasPrefix(att.ContentType, "audio/"),
		strings.HasPrefix(att.ContentType, "video/"):
		// The platform cannot play these inline.
		p.diag("%s cannot be played inline, sending the URL", att.ContentType)
		p.Sendables = append(p.Sendables, chat.Sendable{Text: att.ContentURL})
	default:
		p.Sendables = append(p.Sendables, chat.Sendable{FileURL: att.ContentURL})
	}
}

func (p *Payload) renderCard(kind directline.CardKind, att directline.Attachment) {
	var content directline.CardContent
	if len(att.Content) > 0 {
		if err := json.Unmarshal(att.Content, &content); err != nil {
			p.diag("unreadable %s card content, dropping attachment", kind)
			return
		}
	}

	embed := &chat.Embed{Title: content.Title, Description: content.Subtitle}
	if embed.Description == "" {
		embed.Description = content.Text
	}
	if len(content.Buttons) > 0 {
		// No native button concept on the chat side: keep the first
		// button's target as the embed link.
		embed.URL = content.Buttons[0].Value
		p.diag("%s card buttons are not interactive on the chat side, linking the first", kind)
	}

	switch kind {
	case directline.CardAdaptive:
		p.diag("adaptive cards are not supported, down-rendering with hero formatting")
		fallthrough
	case directline.CardHero, directline.CardThumbnail, directline.CardAnimation:
		if len(content.Images) > 0 {
			embed.ImageURL = content.Images[0].URL
		}
		if len(content.Images) > 1 {
			p.diag("%s card has %d images, only the first is rendered", kind, len(content.Images))
		}
		p.Sendables = append(p.Sendables, chat.Sendable{Embed: embed})
	case directline.CardVideo, directline.CardAudio:
		p.diag("%s cards cannot be played inline, down-rendering to a link", kind)
		if content.Image != nil {
			embed.ImageURL = content.Image.URL
		}
		if len(content.Media) > 0 {
			embed.URL = content.Media[0].URL
		}
		if embed.URL == "" && embed.Title == "" && embed.ImageURL == "" {
			p.diag("%s card has no renderable content, dropping attachment", kind)
			return
		}
		p.Sendables = append(p.Sendables, chat.Sendable{Embed: embed})
	case directline.CardReceipt, directline.CardSignin:
		p.Sendables = append(p.Sendables, chat.Sendable{Embed: embed})
	default:
		p.diag("card type %q not recognized, dropping attachment", att.ContentType)
	}
}
