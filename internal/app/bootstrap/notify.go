package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/salon-booking-platform/internal/config"
	"github.com/wolfman30/salon-booking-platform/internal/http/middleware"
	"github.com/wolfman30/salon-booking-platform/internal/notify"
	"github.com/wolfman30/salon-booking-platform/internal/notify/lineclient"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// BuildEmailSender picks the admin email transport. EMAIL_PROVIDER may be
// sendgrid, ses, stub or auto (SendGrid when a key is set, then SES, then
// the logging stub). awsCfg is only used for SES and may be nil otherwise.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string, error) {
	sendgrid := func() notify.EmailSender {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	ses := func() notify.EmailSender {
		if awsCfg == nil || cfg.SESFromEmail == "" {
			return nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if s := sendgrid(); s != nil {
			return s, "sendgrid", nil
		}
		return nil, "", fmt.Errorf("bootstrap: EMAIL_PROVIDER=sendgrid requires SENDGRID_API_KEY")
	case "ses":
		if s := ses(); s != nil {
			return s, "ses", nil
		}
		return nil, "", fmt.Errorf("bootstrap: EMAIL_PROVIDER=ses requires SES_FROM_EMAIL")
	case "stub":
		return notify.NewStubEmailSender(logger), "stub", nil
	case "", "auto":
		if s := sendgrid(); s != nil {
			return s, "sendgrid", nil
		}
		if s := ses(); s != nil {
			return s, "ses", nil
		}
		return notify.NewStubEmailSender(logger), "stub", nil
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}

// BuildLineClient returns nil when no channel token is configured.
func BuildLineClient(cfg *appconfig.Config, logger *logging.Logger) (*lineclient.Client, error) {
	if cfg == nil || cfg.LineChannelToken == "" {
		return nil, nil
	}
	return lineclient.New(lineclient.Config{
		BaseURL:      cfg.LineAPIBaseURL,
		ChannelToken: cfg.LineChannelToken,
		Logger:       logger,
	})
}

// BuildLineVerifier checks LIFF ID tokens for the customer API. It returns nil
// when LINE_LOGIN_CHANNEL_ID is unset, leaving customer requests anonymous.
func BuildLineVerifier(cfg *appconfig.Config) (middleware.LineTokenVerifier, error) {
	if cfg == nil || cfg.LineLoginChannelID == "" {
		return nil, nil
	}
	v, err := lineclient.NewIDTokenVerifier(lineclient.VerifierConfig{
		BaseURL:   cfg.LineAPIBaseURL,
		ChannelID: cfg.LineLoginChannelID,
	})
	if err != nil {
		return nil, err
	}
	return middleware.LineTokenVerifierFunc(func(ctx context.Context, idToken string) (string, error) {
		sub, err := v.Verify(ctx, idToken)
		if errors.Is(err, lineclient.ErrInvalidIDToken) {
			return "", fmt.Errorf("%w: %v", middleware.ErrInvalidLineToken, err)
		}
		return sub, err
	}), nil
}
