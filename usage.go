package vbot

import (
	"context"
	"time"

	meteruc "github.com/Jikima/VBot/internal/usecase/meter"
)

// RecordChat bills a completed chat exchange by its total token count.
// A *StorageError means the in-memory ledger took the event but the write
// behind it failed; the receipt is valid either way.
func (c *Client) RecordChat(ctx context.Context, caller Caller, tokens int64) (r Receipt, err error) {
	start := time.Now()
	defer func() { c.obs.observe("record_chat", start, err) }()

	return c.record(ctx, caller, meteruc.Event{Kind: meteruc.KindChatTokens, Tokens: tokens})
}

// RecordTranscription bills transcribed audio by its duration in seconds.
func (c *Client) RecordTranscription(ctx context.Context, caller Caller, seconds float64) (r Receipt, err error) {
	start := time.Now()
	defer func() { c.obs.observe("record_transcription", start, err) }()

	return c.record(ctx, caller, meteruc.Event{Kind: meteruc.KindTranscriptionSeconds, Seconds: seconds})
}

// RecordImage bills one generated image of the given size. Sizes outside
// the three known tiers are rejected with ErrInvalidInput before any
// ledger is touched.
func (c *Client) RecordImage(ctx context.Context, caller Caller, size string) (r Receipt, err error) {
	start := time.Now()
	defer func() { c.obs.observe("record_image", start, err) }()

	return c.record(ctx, caller, meteruc.Event{Kind: meteruc.KindImage, Size: size})
}

func (c *Client) record(ctx context.Context, caller Caller, ev meteruc.Event) (Receipt, error) {
	ev.Identity = caller.Identity
	ev.DisplayName = caller.DisplayName
	ev.Group = caller.Group

	receipt, err := c.meterSvc.RecordEvent(ctx, ev)
	return Receipt{
		Cost:        receipt.Cost,
		Remaining:   receipt.Remaining,
		GuestBilled: receipt.GuestBilled,
	}, err
}

// Usage returns the usage and budget report for the caller. Identities
// that never spent anything get a zero report.
func (c *Client) Usage(ctx context.Context, caller Caller) (rep Report, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	report, err := c.meterSvc.Report(ctx, caller.Identity, caller.Group)
	if err != nil {
		return Report{}, err
	}
	return reportFromDomain(report), nil
}
