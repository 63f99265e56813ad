package bootstrap

import (
	"github.com/byteball/btc-exchange/internal/gateway/bitcoin"
	"github.com/byteball/btc-exchange/internal/gateway/mail"
	"github.com/byteball/btc-exchange/internal/gateway/messaging"
	"github.com/byteball/btc-exchange/internal/gateway/rates"
	"github.com/byteball/btc-exchange/internal/gateway/wallet"
)

// Gateway holds the external rails and channels.
type Gateway struct {
	Bitcoin   bitcoin.BitcoinGateway
	Wallet    wallet.WalletGateway
	Messenger messaging.DeviceMessenger
	Notifier  mail.OperatorNotifier
	Mirror    rates.RatesMirror
}

// registerGateway registers the gateways.
func (b *Bootstrap) registerGateway(btc bitcoin.BitcoinGateway) {
	b.Gateway.Bitcoin = btc
	b.Gateway.Wallet = wallet.NewClient(b.Config.Wallet)
	b.Gateway.Messenger = messaging.NewPublisher(b.Config.Kafka, b.Logger)
	b.Gateway.Notifier = mail.NewNotifier(b.Config.Mail, b.Logger)
	b.Gateway.Mirror = rates.NewMirror(b.Redis)
}
