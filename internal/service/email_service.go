package service

import (
	"context"
	"fmt"
	"html"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"stickerboard/internal/models"
	"stickerboard/internal/store"
)

// emailSender is the part of the SES client the service uses.
type emailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     emailSender
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	debug      bool
	log        *zap.Logger
}

// NewEmailService creates a new email service. An empty fromEmail yields a
// disabled service that logs and drops every message.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, debug bool, log *zap.Logger) (*EmailService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("email")

	if fromEmail == "" {
		log.Info("email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, debug: debug, log: log}, nil
	}

	if debug {
		log.Debug("initializing email service",
			zap.String("region", awsRegion),
			zap.String("from_email", fromEmail),
			zap.String("from_name", fromName),
			zap.String("app_base_url", appBaseURL))
	}

	// Load AWS configuration
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("email service enabled", zap.String("from", fromEmail), zap.String("region", awsRegion))
	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL, debug, log), nil
}

func newEmailService(client emailSender, fromEmail, fromName, appBaseURL string, debug bool, log *zap.Logger) *EmailService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		debug:      debug,
		log:        log,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

const emailLayout = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #f5a623; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #fffaf0; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #f5a623; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header"><h1>%s</h1></div>
		<div class="content">%s
			<p style="text-align: center;"><a href="%s" class="button">Open Sticker Board</a></p>
		</div>
		<div class="footer"><p>This is an automated email from Sticker Board. Please do not reply.</p></div>
	</div>
</body>
</html>
`

// SendBoardCompletedEmail tells a parent that a board has every sticker
func (s *EmailService) SendBoardCompletedEmail(ctx context.Context, toEmail string, board *models.Board) error {
	if !s.enabled {
		s.log.Info("skipping email send (service disabled)", zap.String("kind", "board_completed"), zap.String("to", toEmail))
		return nil
	}

	subject := fmt.Sprintf("%q is complete!", board.Title)
	content := fmt.Sprintf(`
			<p>Every one of the %d stickers on <strong>%s</strong> has been earned.</p>
			<p>Time for the reward! You can move the board to history once it has been celebrated.</p>`,
		board.TotalSlots, html.EscapeString(board.Title))
	htmlBody := fmt.Sprintf(emailLayout, "Board complete!", content, s.appBaseURL)

	textBody := fmt.Sprintf(`Every one of the %d stickers on "%s" has been earned.

Time for the reward! You can move the board to history once it has been celebrated.

Open Sticker Board: %s

---
This is an automated email from Sticker Board. Please do not reply.
`, board.TotalSlots, board.Title, s.appBaseURL)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendAccountLinkedEmail confirms that an anonymous account now has credentials
func (s *EmailService) SendAccountLinkedEmail(ctx context.Context, toEmail string) error {
	if !s.enabled {
		s.log.Info("skipping email send (service disabled)", zap.String("kind", "account_linked"), zap.String("to", toEmail))
		return nil
	}

	subject := "Your Sticker Board account is saved"
	content := `
			<p>Your boards are now linked to this email address.</p>
			<p>Sign in with it on any device to see them.</p>`
	htmlBody := fmt.Sprintf(emailLayout, "Account saved", content, s.appBaseURL+"/login")

	textBody := fmt.Sprintf(`Your boards are now linked to this email address.

Sign in with it on any device to see them: %s/login

---
This is an automated email from Sticker Board. Please do not reply.
`, s.appBaseURL)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	if s.debug {
		s.log.Debug("sending email",
			zap.String("from", fromAddress),
			zap.String("to", toEmail),
			zap.String("subject", subject),
			zap.Int("html_bytes", len(htmlBody)),
			zap.Int("text_bytes", len(textBody)))
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	fields := []zap.Field{zap.String("to", toEmail), zap.String("subject", subject)}
	if result != nil && result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	s.log.Info("email sent", fields...)
	return nil
}

// CompletionMailer emails the owner of a board when it fills up. Anonymous
// owners have no address and are skipped.
type CompletionMailer struct {
	email *EmailService
	store store.Store
}

// NewCompletionMailer creates a CompletionNotifier backed by email
func NewCompletionMailer(email *EmailService, st store.Store) *CompletionMailer {
	return &CompletionMailer{email: email, store: st}
}

func (m *CompletionMailer) NotifyBoardCompleted(ctx context.Context, board *models.Board) error {
	if !m.email.IsEnabled() {
		return nil
	}

	doc, err := m.store.Get(ctx, models.CollectionAccounts, board.OwnerID)
	if err != nil {
		return storeError("failed to get board owner", err)
	}
	owner, err := models.DecodeAccount(doc)
	if err != nil {
		return fmt.Errorf("failed to decode board owner: %w", err)
	}
	if owner.IsAnonymous || owner.Email == "" {
		return nil
	}
	return m.email.SendBoardCompletedEmail(ctx, owner.Email, board)
}
