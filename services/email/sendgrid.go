package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/darasa/core"
)

// sendConcurrency bounds the API calls of one SendMessages batch.
const sendConcurrency = 4

type sendgridService struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) *sendgridService {
	return &sendgridService{
		client:     sendgrid.NewSendClient(conf.SendgridApiKey),
		from:       sgEmail(conf.DefaultFromEmail),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

// SendMessages renders & sends the batch in the background.
// Messages with no recipient or nothing to say are dropped.
func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	go func() {
		var g errgroup.Group
		g.SetLimit(sendConcurrency)
		for _, msg := range messages {
			msg := msg
			g.Go(func() error {
				if err := msg.Render(); err != nil {
					svc.logger.Error(fmt.Sprintf("rendering email %q: %v", msg.Subject, err), err)
					return nil
				}
				if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
					svc.send(svc.build(*msg))
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (svc sendgridService) build(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, addr := range msg.To {
		p.AddTos(sgEmail(addr))
	}
	for _, addr := range msg.Cc {
		p.AddCCs(sgEmail(addr))
	}
	for _, addr := range msg.Bcc {
		p.AddBCCs(sgEmail(addr))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	// sendgrid rejects empty content values; text/plain must come first
	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	for _, at := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     at.Content.String(), // already base64
			Type:        at.ContentType,
			Filename:    at.Filename,
			Disposition: "attachment",
		})
	}
	return m
}

func (svc sendgridService) send(m *sgmail.SGMailV3) {
	res, err := svc.client.Send(m)
	switch {
	case err != nil:
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
	case res.StatusCode >= http.StatusBadRequest:
		svc.logger.Error(fmt.Sprintf("sending email - status: %d - Body: %s", res.StatusCode, res.Body))
	}
}
