// Package mention holds the inbound Farcaster cast model and the helpers that
// read author metadata from it.
package mention

import (
	"encoding/json"
	"fmt"
)

// Mention is an inbound cast addressed to the bot. It is treated as
// immutable once decoded.
type Mention struct {
	Hash    string   `json:"hash"`
	Author  Author   `json:"author"`
	Text    string   `json:"text"`
	Embeds  []Embed  `json:"embeds,omitempty"`
	Channel *Channel `json:"channel,omitempty"`

	// Allowed is set upstream to bypass the allow list.
	Allowed bool `json:"allowed,omitempty"`
}

// Author is the cast author as delivered by the social API.
type Author struct {
	FID               int64             `json:"fid"`
	Username          string            `json:"username"`
	DisplayName       string            `json:"display_name"`
	VerifiedAddresses VerifiedAddresses `json:"verified_addresses"`
	Experimental      *Experimental     `json:"experimental,omitempty"`
}

type VerifiedAddresses struct {
	EthAddresses []string `json:"eth_addresses"`
}

type Experimental struct {
	NeynarUserScore *float64 `json:"neynar_user_score,omitempty"`
}

// Embed is a URL attached to the cast. Metadata may still be PENDING when the
// webhook fires.
type Embed struct {
	URL      string         `json:"url,omitempty"`
	Metadata *EmbedMetadata `json:"metadata,omitempty"`
}

type EmbedMetadata struct {
	ContentType string `json:"content_type,omitempty"`
	Status      string `json:"_status,omitempty"`
}

// MetadataPending is the metadata status of an embed not yet crawled.
const MetadataPending = "PENDING"

type Channel struct {
	ID string `json:"id"`
}

// ChannelID returns the channel id or "" when the cast is not in a channel.
func (m *Mention) ChannelID() string {
	if m.Channel == nil {
		return ""
	}
	return m.Channel.ID
}

// SocialScore returns the author's social score when the API supplied one.
func (a Author) SocialScore() (float64, bool) {
	if a.Experimental == nil || a.Experimental.NeynarUserScore == nil {
		return 0, false
	}
	return *a.Experimental.NeynarUserScore, true
}

// Decode parses a mention from its JSON form and checks the fields every
// pipeline step relies on.
func Decode(data []byte) (*Mention, error) {
	var m Mention
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("mention: decode: %w", err)
	}
	if m.Hash == "" {
		return nil, fmt.Errorf("mention: decode: missing hash")
	}
	if m.Author.FID <= 0 {
		return nil, fmt.Errorf("mention: decode: missing author fid")
	}
	return &m, nil
}
