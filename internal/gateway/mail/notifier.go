package mail

import (
	"gopkg.in/gomail.v2"

	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/logger"
)

// Notifier emails the operator about conditions that need a human:
// solvency shortfalls, payout failures, degraded instant rates.
type Notifier struct {
	dialer *gomail.Dialer
	from   string
	admin  string
	logger logger.Interface
}

// NewNotifier creates an SMTP notifier.
func NewNotifier(cfg config.MailConfig, logger logger.Interface) *Notifier {
	return &Notifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.FromEmail,
		admin:  cfg.AdminEmail,
		logger: logger,
	}
}

// NotifyOperator sends an alert mail. Delivery failures are logged but
// never propagated, an unreachable SMTP server must not block settlement.
func (n *Notifier) NotifyOperator(subject, body string) {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.admin)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		n.logger.Error(err, logger.Field{Key: "subject", Value: subject})
	}
}
