// Package notify delivers short user-facing notices such as schedule changes.
package notify

import (
	"context"
	"errors"
	"log"
)

// Notifier delivers a notice with a title and a body.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, title, body string) error

func (f Func) Notify(ctx context.Context, title, body string) error {
	return f(ctx, title, body)
}

// Log writes notices to the process log. It never fails.
type Log struct{}

func (Log) Notify(_ context.Context, title, body string) error {
	log.Printf("[notify] %s: %s", title, body)
	return nil
}

// Fallback tries Primary and hands the notice to Secondary when Primary is
// missing or fails.
type Fallback struct {
	Primary   Notifier
	Secondary Notifier
}

func (f Fallback) Notify(ctx context.Context, title, body string) error {
	if f.Primary != nil {
		err := f.Primary.Notify(ctx, title, body)
		if err == nil {
			return nil
		}
		log.Printf("Primary notifier failed, falling back: %v", err)
		if f.Secondary == nil {
			return err
		}
	}
	if f.Secondary == nil {
		return errors.New("no notifier configured")
	}
	return f.Secondary.Notify(ctx, title, body)
}
