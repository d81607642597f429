// Package registry maintains the durable mapping between chat channels
// and protocol conversations. Each pair is stored once under a composite
// key, and either half resolves back to the full record.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tinyland-inc/dlbridge/pkg/storage"
)

// Separator joins the conversation and channel ids in the composite key.
// Neither component may contain it.
const Separator = "|"

var (
	// ErrNotFound means no mapping exists for the given id.
	ErrNotFound = errors.New("registry: conversation record not found")
	// ErrInvalidArguments means the caller supplied no usable id, or an
	// id containing the reserved separator.
	ErrInvalidArguments = errors.New("registry: invalid arguments")
)

// ConversationRecord is the durable identity of one bridged
// conversation.
type ConversationRecord struct {
	// ID is "<conversationID>|<channelID>".
	ID string `json:"id"`
	// StreamURL is the current streaming endpoint. It is ephemeral,
	// refreshed on renewal, and never persisted.
	StreamURL string `json:"-"`
}

// ConversationID returns the protocol half of the composite key.
func (r *ConversationRecord) ConversationID() string {
	conv, _, _ := strings.Cut(r.ID, Separator)
	return conv
}

// ChannelID returns the chat half of the composite key.
func (r *ConversationRecord) ChannelID() string {
	_, channel, _ := strings.Cut(r.ID, Separator)
	return channel
}

// Registry resolves and creates conversation records over a pluggable
// store. Create is serialized per channel so concurrent first messages
// from one channel produce exactly one record.
type Registry struct {
	store storage.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store storage.Store) *Registry {
	return &Registry{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// Resolve returns the unique record containing the given channel id,
// conversation id, or both. At least one must be non-empty.
func (r *Registry) Resolve(ctx context.Context, chatChannelID, conversationID string) (*ConversationRecord, error) {
	if chatChannelID == "" && conversationID == "" {
		return nil, fmt.Errorf("%w: need a channel id or a conversation id", ErrInvalidArguments)
	}
	if err := validateComponent(chatChannelID); err != nil {
		return nil, err
	}
	if err := validateComponent(conversationID); err != nil {
		return nil, err
	}

	if chatChannelID != "" && conversationID != "" {
		value, err := r.store.Get(ctx, conversationID+Separator+chatChannelID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("registry: resolving record: %w", err)
		}
		return decodeRecord(value)
	}

	// Anchor the given half at both ends so a partial id can match
	// neither the wrong half of a key nor a prefix or suffix of the
	// right half.
	match := matchConversation(conversationID)
	if conversationID == "" {
		match = matchChannel(chatChannelID)
	}
	_, value, err := r.store.Scan(ctx, match)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: resolving record: %w", err)
	}
	return decodeRecord(value)
}

func matchConversation(conversationID string) func(string) bool {
	prefix := conversationID + Separator
	return func(key string) bool { return strings.HasPrefix(key, prefix) }
}

func matchChannel(channelID string) func(string) bool {
	suffix := Separator + channelID
	return func(key string) bool { return strings.HasSuffix(key, suffix) }
}

// Create persists the mapping for the given pair. Creation is
// first-wins per channel: an existing record for the channel is
// returned unchanged, whatever conversation id it carries.
func (r *Registry) Create(ctx context.Context, conversationID, chatChannelID string) (*ConversationRecord, error) {
	if conversationID == "" || chatChannelID == "" {
		return nil, fmt.Errorf("%w: both ids are required to create a record", ErrInvalidArguments)
	}
	if err := validateComponent(conversationID); err != nil {
		return nil, err
	}
	if err := validateComponent(chatChannelID); err != nil {
		return nil, err
	}

	unlock := r.lockChannel(chatChannelID)
	defer unlock()

	// A channel maps to at most one conversation. When a record for the
	// channel already exists, even under a different conversation id,
	// return it unchanged so concurrent first contacts converge on a
	// single mapping.
	if _, value, err := r.store.Scan(ctx, matchChannel(chatChannelID)); err == nil {
		return decodeRecord(value)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("registry: checking existing record: %w", err)
	}

	key := conversationID + Separator + chatChannelID
	rec := &ConversationRecord{ID: key}
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("registry: encoding record: %w", err)
	}
	if err := r.store.Upsert(ctx, key, value); err != nil {
		return nil, fmt.Errorf("registry: persisting record: %w", err)
	}
	return rec, nil
}

// lockChannel serializes check-then-act sequences for one channel.
func (r *Registry) lockChannel(channelID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[channelID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func validateComponent(id string) error {
	if strings.Contains(id, Separator) {
		return fmt.Errorf("%w: id %q contains reserved separator %q", ErrInvalidArguments, id, Separator)
	}
	return nil
}

func decodeRecord(value []byte) (*ConversationRecord, error) {
	var rec ConversationRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("registry: decoding record: %w", err)
	}
	return &rec, nil
}
