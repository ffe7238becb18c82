// Package notify delivers sale notifications to sellers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/creaturebot/market-engine/internal/market"
)

// Messenger is the part of a Discord session the notifier uses.
type Messenger interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier sends sellers a direct message when a listing sells.
// Seller ids are Discord user ids.
type DiscordNotifier struct {
	session Messenger
}

// ErrNoToken is returned when a Discord notifier is requested without a
// bot token.
var ErrNoToken = errors.New("notify: discord token is required")

// NewDiscordNotifier creates a REST-only Discord session for the bot token.
func NewDiscordNotifier(token string) (*DiscordNotifier, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordNotifier{session: s}, nil
}

// NewDiscordNotifierWith wraps an existing session.
func NewDiscordNotifierWith(session Messenger) *DiscordNotifier {
	return &DiscordNotifier{session: session}
}

// NotifySale opens a DM channel with the seller and posts the sale embed.
func (n *DiscordNotifier) NotifySale(ctx context.Context, s market.Sale) error {
	ch, err := n.session.UserChannelCreate(s.SellerID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", s.SellerID, err)
	}
	if _, err := n.session.ChannelMessageSendEmbed(ch.ID, SaleEmbed(s), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm to %s: %w", s.SellerID, err)
	}
	return nil
}

// SaleEmbed renders the seller's sale message.
func SaleEmbed(s market.Sale) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Your listing has been sold!",
		Description: fmt.Sprintf("Someone purchased your **%s %s** from the market. You received %s coins!",
			market.FormatIV(s.Creature), s.SpeciesName, market.FormatCoins(s.Price)),
		Color:     0xF8D030,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "Listing " + s.ListingID},
	}
}

// LogNotifier records sales in the log instead of messaging anyone. Used
// when no Discord token is configured.
type LogNotifier struct{}

func (LogNotifier) NotifySale(_ context.Context, s market.Sale) error {
	slog.Info("sale notification",
		"listing_id", s.ListingID, "seller_id", s.SellerID, "price", s.Price, "species", s.SpeciesName)
	return nil
}
