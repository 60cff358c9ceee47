package initializers

import (
	"fmt"
	"log/slog"

	"github.com/ZhengyiNLP/sister-expense-tracker/config"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/notify"
)

func NewMailer(cfg config.Mail, log *slog.Logger) (notify.Mailer, error) {
	switch cfg.Provider {
	case config.MailSendgrid:
		return notify.NewSendgridMailer(cfg.APIKey, cfg.FromName, cfg.FromAddress), nil
	case config.MailResend:
		return notify.NewResendMailer(cfg.APIKey, cfg.FromName, cfg.FromAddress), nil
	case config.MailLog, "":
		log.Warn("emails are written to the log and not delivered")
		return &notify.LogMailer{Logger: log}, nil
	default:
		return nil, fmt.Errorf("initializers.NewMailer: unknown provider %q", cfg.Provider)
	}
}
