package messaging

import (
	"context"

	"golang.org/x/time/rate"
)

// Email is an outgoing email handed to a provider.
type Email struct {
	From      string
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// EmailSender delivers email and returns the provider message id.
type EmailSender interface {
	SendEmail(ctx context.Context, email Email) (string, error)
}

// SMSSender delivers text messages and returns the provider message id.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) (string, error)
}

type limitedEmail struct {
	next    EmailSender
	limiter *rate.Limiter
}

// LimitEmail throttles next to perSecond sends. perSecond <= 0 disables throttling.
func LimitEmail(next EmailSender, perSecond float64, burst int) EmailSender {
	if next == nil || perSecond <= 0 {
		return next
	}
	return &limitedEmail{next: next, limiter: newLimiter(perSecond, burst)}
}

func (l *limitedEmail) SendEmail(ctx context.Context, email Email) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.SendEmail(ctx, email)
}

type limitedSMS struct {
	next    SMSSender
	limiter *rate.Limiter
}

// LimitSMS throttles next to perSecond sends. perSecond <= 0 disables throttling.
func LimitSMS(next SMSSender, perSecond float64, burst int) SMSSender {
	if next == nil || perSecond <= 0 {
		return next
	}
	return &limitedSMS{next: next, limiter: newLimiter(perSecond, burst)}
}

func (l *limitedSMS) SendSMS(ctx context.Context, from, to, body string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.SendSMS(ctx, from, to, body)
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
