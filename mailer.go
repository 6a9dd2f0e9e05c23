package auth

import (
	"fmt"
	"sync"
)

const (
	activationSubject = "Activate"
	activationBody    = "Click the link to activate your account"
	resetSubject      = "Reset password"
	resetBody         = "Click the link to reset your password"
)

// EmailSender delivers a link email. It is supplied by the embedding
// application.
type EmailSender func(recipient, link, body, subject string) error

// LinkEmail is a single activation or reset message.
type LinkEmail struct {
	Recipient string
	Link      string
	Body      string
	Subject   string
}

// EmailDispatcher hands emails to an EmailSender. Dispatch never reports
// delivery failures to the caller.
type EmailDispatcher interface {
	Dispatch(email LinkEmail)
}

// DetachedDispatcher sends every email on its own goroutine. There is no
// retry and no cancellation.
type DetachedDispatcher struct {
	send   EmailSender
	logger Logger
	wg     sync.WaitGroup
}

// NewDetachedDispatcher returns a dispatcher that logs failures with logger.
func NewDetachedDispatcher(send EmailSender, logger Logger) *DetachedDispatcher {
	if logger == nil {
		_, logger = ResolveLogger("auth.mailer", nil, nil)
	}
	return &DetachedDispatcher{send: send, logger: logger}
}

func (d *DetachedDispatcher) Dispatch(email LinkEmail) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		deliver(d.send, d.logger, email)
	}()
}

// Wait blocks until all dispatched emails were handed to the sender.
func (d *DetachedDispatcher) Wait() {
	d.wg.Wait()
}

// SyncDispatcher sends on the calling goroutine.
type SyncDispatcher struct {
	send   EmailSender
	logger Logger
}

func NewSyncDispatcher(send EmailSender, logger Logger) *SyncDispatcher {
	if logger == nil {
		_, logger = ResolveLogger("auth.mailer", nil, nil)
	}
	return &SyncDispatcher{send: send, logger: logger}
}

func (d *SyncDispatcher) Dispatch(email LinkEmail) {
	deliver(d.send, d.logger, email)
}

func deliver(send EmailSender, logger Logger, email LinkEmail) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("email sender panicked",
				"recipient", email.Recipient,
				"subject", email.Subject,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if send == nil {
		logger.Warn("no email sender configured", "recipient", email.Recipient, "subject", email.Subject)
		return
	}

	if err := send(email.Recipient, email.Link, email.Body, email.Subject); err != nil {
		logger.Error("failed to send email",
			"recipient", email.Recipient,
			"subject", email.Subject,
			"error", err,
		)
		return
	}

	logger.Debug("email sent", "recipient", email.Recipient, "subject", email.Subject)
}

func activationEmail(recipient, link string) LinkEmail {
	return LinkEmail{
		Recipient: recipient,
		Link:      link,
		Body:      activationBody,
		Subject:   activationSubject,
	}
}

func resetEmail(recipient, link string) LinkEmail {
	return LinkEmail{
		Recipient: recipient,
		Link:      link,
		Body:      resetBody,
		Subject:   resetSubject,
	}
}
