package twilio

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/mzahid/dialdesk/internal/inbox"
)

// maxRecordingFetches bounds how many calls get their recordings
// sub-resource fetched per snapshot, to stay under provider rate limits.
const maxRecordingFetches = 10

var dateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC3339}

type accum struct {
	phone        string
	messages     []inbox.Message
	lastTime     time.Time
	hasCall      bool
	callStatus   inbox.CallStatus
	callDuration string
}

// BuildSnapshot fetches the provider's current view of all messages and
// calls for the configured number and regroups it into per-counterparty
// deltas. Self-legs, foreign-number records and softphone client legs are
// filtered here, before the merger ever sees them.
func (c *Client) BuildSnapshot(ctx context.Context) ([]inbox.Delta, error) {
	own := inbox.NormalizePhone(c.cfg.PhoneNumber)

	sent, err := c.ListMessages(ctx, url.Values{"From": {c.cfg.PhoneNumber}})
	if err != nil {
		return nil, fmt.Errorf("snapshot sent messages: %w", err)
	}
	received, err := c.ListMessages(ctx, url.Values{"To": {c.cfg.PhoneNumber}})
	if err != nil {
		return nil, fmt.Errorf("snapshot received messages: %w", err)
	}
	calls, err := c.ListCalls(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot calls: %w", err)
	}

	byPhone := make(map[string]*accum)
	get := func(phone string) *accum {
		a, ok := byPhone[phone]
		if !ok {
			a = &accum{phone: phone}
			byPhone[phone] = a
		}
		return a
	}

	for _, m := range append(sent, received...) {
		outgoing := isOutbound(m.Direction)
		other := m.From
		if outgoing {
			other = m.To
		}
		otherNorm := inbox.NormalizePhone(other)

		if inbox.NormalizePhone(m.From) != own && inbox.NormalizePhone(m.To) != own {
			continue
		}
		if otherNorm == own {
			continue
		}

		when := parseDate(m.DateCreated)
		a := get(other)
		sender := inbox.SenderContact
		if outgoing {
			sender = inbox.SenderSelf
		}
		a.messages = append(a.messages, inbox.Message{
			ID:        m.SID,
			Content:   m.Body,
			Sender:    sender,
			Timestamp: when.UTC().Format(time.RFC3339),
			Type:      inbox.TypeText,
			Read:      outgoing,
		})
		if when.After(a.lastTime) {
			a.lastTime = when
		}
	}

	type pendingRecording struct {
		call     CallRecord
		a        *accum
		when     time.Time
		duration string
	}
	var withRecordings []pendingRecording

	for _, call := range calls {
		outgoing := isOutbound(call.Direction)
		other := call.From
		if outgoing {
			other = call.To
		}
		if inbox.IsDeviceAddress(other) {
			continue
		}
		otherNorm := inbox.NormalizePhone(other)
		if inbox.NormalizePhone(call.From) != own && inbox.NormalizePhone(call.To) != own {
			continue
		}
		if otherNorm == own {
			continue
		}

		when := parseDate(call.DateCreated)
		duration := formatDuration(call.Duration)
		outcome := callOutcome(call.Status, outgoing)

		a := get(other)
		a.hasCall = true
		a.callStatus = outcome
		a.callDuration = duration

		sender := inbox.SenderContact
		if outgoing {
			sender = inbox.SenderSelf
		}
		a.messages = append(a.messages, inbox.Message{
			ID:        call.SID,
			Content:   callContent(outcome, duration),
			Sender:    sender,
			Timestamp: when.UTC().Format(time.RFC3339),
			Type:      inbox.TypeCallLog,
			Duration:  duration,
			CallType:  outcome,
			Read:      outgoing && outcome != inbox.CallMissed,
		})
		if call.SubresourceURIs.Recordings != "" {
			withRecordings = append(withRecordings, pendingRecording{call: call, a: a, when: when, duration: duration})
		}
		if when.After(a.lastTime) {
			a.lastTime = when
		}
	}

	if len(withRecordings) > maxRecordingFetches {
		withRecordings = withRecordings[:maxRecordingFetches]
	}
	for _, p := range withRecordings {
		recs, err := c.ListRecordings(ctx, p.call.SubresourceURIs.Recordings)
		if err != nil {
			// Recording markers are decoration; a failed fetch never
			// fails the snapshot.
			continue
		}
		for _, rec := range recs {
			p.a.messages = append(p.a.messages, inbox.Message{
				ID:           p.call.SID + "-recording-" + rec.SID,
				Content:      "Call Recording",
				Sender:       inbox.SenderSelf,
				Timestamp:    p.when.UTC().Format(time.RFC3339),
				Type:         inbox.TypeCallRecording,
				RecordingURL: c.RecordingMediaURL(rec.SID),
				Duration:     p.duration,
				Read:         true,
			})
		}
	}

	deltas := make([]inbox.Delta, 0, len(byPhone))
	for _, a := range byPhone {
		sort.SliceStable(a.messages, func(i, j int) bool {
			return a.messages[i].Timestamp < a.messages[j].Timestamp
		})
		kind := inbox.KindMessage
		if a.hasCall {
			kind = inbox.KindCall
		}
		d := inbox.Delta{
			Phone:        a.phone,
			Name:         a.phone,
			Kind:         kind,
			CallStatus:   a.callStatus,
			CallDuration: a.callDuration,
			Time:         a.lastTime.UTC().Format(time.RFC3339),
			Messages:     a.messages,
		}
		if n := len(a.messages); n > 0 {
			d.LastMessage = a.messages[n-1].Content
		}
		deltas = append(deltas, d)
	}
	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].Time > deltas[j].Time
	})
	return deltas, nil
}

func isOutbound(direction string) bool {
	switch direction {
	case "outbound", "outbound-api", "outbound-call", "outbound-reply", "outbound-dial":
		return true
	}
	return false
}

func parseDate(value string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Unix(0, 0)
}

func formatDuration(raw string) string {
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func callOutcome(status string, outgoing bool) inbox.CallStatus {
	switch status {
	case "no-answer", "busy", "canceled":
		return inbox.CallMissed
	}
	if outgoing {
		return inbox.CallOutgoing
	}
	return inbox.CallIncoming
}

func callContent(outcome inbox.CallStatus, duration string) string {
	switch outcome {
	case inbox.CallMissed:
		return "Missed call"
	case inbox.CallOutgoing:
		return "Outgoing call - " + duration
	default:
		return "Incoming call - " + duration
	}
}
