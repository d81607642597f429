// Package directline holds the Direct Line activity model and the REST
// client used to create, renew, and post to conversations.
package directline

import (
	"encoding/json"
	"strings"
)

// Activity types carried over the protocol.
const (
	TypeMessage            = "message"
	TypeTyping             = "typing"
	TypeConversationUpdate = "conversationUpdate"
	TypeDeleteUserData     = "deleteUserData"
)

// ChannelAccount identifies a user or bot on the protocol side.
type ChannelAccount struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount scopes an activity to a conversation.
type ConversationAccount struct {
	ID string `json:"id"`
}

// Attachment is a single rich-content item on an activity.
type Attachment struct {
	ContentType string          `json:"contentType"`
	ContentURL  string          `json:"contentUrl,omitempty"`
	Name        string          `json:"name,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
}

// Activity is the canonical protocol-side message unit.
type Activity struct {
	ID               string               `json:"id,omitempty"`
	Type             string               `json:"type"`
	From             ChannelAccount       `json:"from"`
	Conversation     *ConversationAccount `json:"conversation,omitempty"`
	ChannelID        string               `json:"channelId,omitempty"`
	Text             string               `json:"text,omitempty"`
	Attachments      []Attachment         `json:"attachments,omitempty"`
	AttachmentLayout string               `json:"attachmentLayout,omitempty"`
	MembersAdded     []ChannelAccount     `json:"membersAdded,omitempty"`
	MembersRemoved   []ChannelAccount     `json:"membersRemoved,omitempty"`
}

// LayoutCarousel marks multi-item attachment layouts that must be
// flattened to individual sends on the chat side.
const LayoutCarousel = "carousel"

// Frame is one streaming-transport message: a batch of activities plus
// the server watermark.
type Frame struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark,omitempty"`
}

// CardKind is the closed set of rich-card variants the bridge knows how
// to down-render. Anything else parses to CardUnknown.
type CardKind int

const (
	CardUnknown CardKind = iota
	CardAdaptive
	CardHero
	CardThumbnail
	CardAnimation
	CardAudio
	CardVideo
	CardReceipt
	CardSignin
)

// Rich-card content types follow "application/vnd.<provider>.card.<kind>".
// The provider varies across emitters ("microsoft", "msft", ...), so only
// the shape is matched; the kind suffix selects from the closed set.
const (
	cardContentTypePrefix = "application/vnd."
	cardContentTypeInfix  = ".card."
)

var cardKinds = map[string]CardKind{
	"adaptive":  CardAdaptive,
	"hero":      CardHero,
	"thumbnail": CardThumbnail,
	"animation": CardAnimation,
	"audio":     CardAudio,
	"video":     CardVideo,
	"receipt":   CardReceipt,
	"signin":    CardSignin,
}

var cardKindNames = map[CardKind]string{
	CardUnknown:   "unknown",
	CardAdaptive:  "adaptive",
	CardHero:      "hero",
	CardThumbnail: "thumbnail",
	CardAnimation: "animation",
	CardAudio:     "audio",
	CardVideo:     "video",
	CardReceipt:   "receipt",
	CardSignin:    "signin",
}

func (k CardKind) String() string {
	return cardKindNames[k]
}

// ParseCardKind reports whether contentType names a rich card and, if
// so, which kind. Unrecognized card suffixes return (CardUnknown, true).
func ParseCardKind(contentType string) (CardKind, bool) {
	rest, found := strings.CutPrefix(contentType, cardContentTypePrefix)
	if !found {
		return CardUnknown, false
	}
	provider, suffix, found := strings.Cut(rest, cardContentTypeInfix)
	if !found || provider == "" || strings.Contains(provider, "/") {
		return CardUnknown, false
	}
	kind, ok := cardKinds[suffix]
	if !ok {
		return CardUnknown, true
	}
	return kind, true
}

// CardImage is an image reference inside a card payload.
type CardImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// CardMedia is a media reference inside an audio/video/animation card.
type CardMedia struct {
	URL string `json:"url"`
}

// CardAction is a button on a card. The chat platform has no native
// button concept, so only the first action's value survives
// down-rendering.
type CardAction struct {
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
	Value string `json:"value,omitempty"`
}

// CardContent is the common shape shared by every card kind the bridge
// down-renders. Kind-specific fields it does not use are ignored.
type CardContent struct {
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Text     string       `json:"text,omitempty"`
	Images   []CardImage  `json:"images,omitempty"`
	Image    *CardImage   `json:"image,omitempty"`
	Media    []CardMedia  `json:"media,omitempty"`
	Buttons  []CardAction `json:"buttons,omitempty"`
}
