package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
	"github.com/byteball/btc-exchange/internal/gateway/messaging"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/alias"
	"github.com/byteball/btc-exchange/pkg/logger"
)

const (
	rateLimitWindow    = 30 * time.Second
	maxHitsPerWindow   = 6
	noWarningThreshold = 2
)

// Error codes returned to alias devices.
const (
	errTooManyRequests = iota
	errNotAnAlias
	errUnknownKey
	errBadCommand
	errBadPrice
	errBadTag
	errBadTimeLimit
	errNoPrice
	errTimeLimitExpired
)

var errorTexts = map[int]string{
	errTooManyRequests:  "too many requests",
	errNotAnAlias:       "you're not an alias",
	errUnknownKey:       "object has a key not allowed",
	errBadCommand:       "command should be a string",
	errBadPrice:         "price should be a number",
	errBadTag:           "tag should be a string",
	errBadTimeLimit:     "time_limit should be an integer",
	errNoPrice:          "no price set for buy or sell command",
	errTimeLimitExpired: "time limit expired",
}

// Command is a structured request from an alias device.
type Command struct {
	Command   string   `json:"command"`
	Price     *float64 `json:"price,omitempty"`
	Tag       string   `json:"tag"`
	TimeLimit int64    `json:"time_limit"`
}

var allowedKeys = map[string]struct{}{
	"command": {}, "price": {}, "tag": {}, "time_limit": {},
}

// BookCommands is the slice of the book usecase the API drives.
type BookCommands interface {
	UpdateBuyPrice(ctx context.Context, deviceAddress string, newPrice *float64) error
	UpdateSellPrice(ctx context.Context, deviceAddress string, newPrice *float64) error
	GetOrders(ctx context.Context, deviceAddress string) ([]*orderv1.BuyerOrder, []*orderv1.SellerOrder, error)
	GetBookLevels(ctx context.Context) ([]orderv1.Level, error)
}

// Usecase implements the merchant API: registered alias devices drive
// their principal's price intents and read the book over structured chat
// messages.
type Usecase struct {
	aliases   alias.AliasRepository
	book      BookCommands
	messenger messaging.DeviceMessenger
	logger    logger.Interface

	mu   sync.Mutex
	hits map[string]int
}

// NewUsecase creates the API usecase.
func NewUsecase(
	aliases alias.AliasRepository,
	book BookCommands,
	messenger messaging.DeviceMessenger,
	logger logger.Interface,
) *Usecase {
	return &Usecase{
		aliases:   aliases,
		book:      book,
		messenger: messenger,
		logger:    logger,
		hits:      make(map[string]int),
	}
}

// Run resets the rate-limit window until the context is canceled.
func (u *Usecase) Run(ctx context.Context) {
	ticker := time.NewTicker(rateLimitWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.mu.Lock()
			u.hits = make(map[string]int)
			u.mu.Unlock()
		}
	}
}

// HandleObject processes one structured message from an alias device.
// Raw is the original JSON object, needed to reject unknown keys.
func (u *Usecase) HandleObject(ctx context.Context, fromAliasAddress string, raw json.RawMessage) {
	u.mu.Lock()
	u.hits[fromAliasAddress]++
	hits := u.hits[fromAliasAddress]
	u.mu.Unlock()

	// Far over the limit the sender gets silence, just over it a warning.
	if hits > maxHitsPerWindow+noWarningThreshold {
		return
	}
	if hits > maxHitsPerWindow {
		u.replyError(ctx, fromAliasAddress, errTooManyRequests)
		return
	}

	cmd, errCode := parseCommand(raw)
	if errCode != 0 {
		u.replyError(ctx, fromAliasAddress, errCode)
		return
	}

	deviceAddress, err := u.aliases.ResolveDevice(ctx, fromAliasAddress)
	if err != nil {
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "alias", Value: fromAliasAddress})
		return
	}
	if deviceAddress == "" {
		u.replyError(ctx, fromAliasAddress, errNotAnAlias)
		return
	}

	u.dispatch(ctx, fromAliasAddress, deviceAddress, cmd)
}

func parseCommand(raw json.RawMessage) (Command, int) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Command{}, errBadCommand
	}
	for key := range keys {
		if _, ok := allowedKeys[key]; !ok {
			return Command{}, errUnknownKey
		}
	}

	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, errBadCommand
	}
	if cmd.Command == "" {
		return Command{}, errBadCommand
	}
	if cmd.Price != nil && *cmd.Price <= 0 {
		return Command{}, errBadPrice
	}
	if cmd.Tag == "" {
		return Command{}, errBadTag
	}
	if cmd.TimeLimit <= 0 {
		return Command{}, errBadTimeLimit
	}
	if cmd.TimeLimit < time.Now().Unix() {
		return Command{}, errTimeLimitExpired
	}
	return cmd, 0
}

func (u *Usecase) dispatch(ctx context.Context, fromAliasAddress, deviceAddress string, cmd Command) {
	switch cmd.Command {
	case "buy", "sell":
		if cmd.Price == nil {
			u.replyError(ctx, fromAliasAddress, errNoPrice)
			return
		}
		var err error
		if cmd.Command == "buy" {
			err = u.book.UpdateBuyPrice(ctx, deviceAddress, cmd.Price)
		} else {
			err = u.book.UpdateSellPrice(ctx, deviceAddress, cmd.Price)
		}
		if err != nil {
			u.logger.ErrorContext(ctx, err,
				logger.Field{Key: "device_address", Value: deviceAddress},
				logger.Field{Key: "command", Value: cmd.Command},
			)
			return
		}
		u.reply(ctx, fromAliasAddress, map[string]any{"response": "accepted", "tag": cmd.Tag})

	case "orders":
		buyers, sellers, err := u.book.GetOrders(ctx, deviceAddress)
		if err != nil {
			u.logger.ErrorContext(ctx, err,
				logger.Field{Key: "device_address", Value: deviceAddress})
			return
		}
		u.reply(ctx, fromAliasAddress, map[string]any{
			"response": map[string]any{"buy": buyers, "sell": sellers},
			"tag":      cmd.Tag,
		})

	case "book":
		levels, err := u.book.GetBookLevels(ctx)
		if err != nil {
			u.logger.ErrorContext(ctx, err)
			return
		}
		u.reply(ctx, fromAliasAddress, map[string]any{"response": levels, "tag": cmd.Tag})
	}
}

// NotifyPayout tells the alias of a participant about an executed payout.
// Registered on the payout-executed event.
func (u *Usecase) NotifyPayout(ctx context.Context, obligation settlementv1.Obligation, reference string) {
	aliasAddress, err := u.aliases.GetByDevice(ctx, obligation.DeviceAddress)
	if err != nil {
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "device_address", Value: obligation.DeviceAddress})
		return
	}
	if aliasAddress == "" {
		return
	}

	payoutType := "btc"
	if obligation.BytesObligation() {
		payoutType = "bytes"
	}
	u.reply(ctx, aliasAddress, map[string]any{
		"event":  "transaction",
		"type":   payoutType,
		"amount": obligation.Amount,
		"txid":   reference,
	})
}

// RegisterAlias records that aliasAddress may act for deviceAddress.
func (u *Usecase) RegisterAlias(ctx context.Context, deviceAddress, aliasAddress string) error {
	return u.aliases.Set(ctx, deviceAddress, aliasAddress)
}

// RemoveAlias revokes the participant's alias. Commands from the old
// alias address are rejected afterwards.
func (u *Usecase) RemoveAlias(ctx context.Context, deviceAddress string) error {
	return u.aliases.Remove(ctx, deviceAddress)
}

func (u *Usecase) replyError(ctx context.Context, toAddress string, code int) {
	u.reply(ctx, toAddress, map[string]any{"error_code": code, "error": errorTexts[code]})
}

func (u *Usecase) reply(ctx context.Context, toAddress string, payload map[string]any) {
	if err := u.messenger.SendObject(ctx, toAddress, "object", payload); err != nil {
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "to_address", Value: toAddress})
	}
}
