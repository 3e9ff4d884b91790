// Package views contains the tview widgets for the terminal UI.
package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/timefmt"
)

// ConversationList is the main inbox table.
type ConversationList struct {
	*tview.Table
	conversations []inbox.Conversation
	selectedFn    func() (int, int)
	loc           *time.Location
}

// NewConversationList creates the inbox table.
func NewConversationList(loc *time.Location) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")

	cl := &ConversationList{Table: table, loc: loc}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the table with new data.
func (cl *ConversationList) Update(conversations []inbox.Conversation) {
	cl.conversations = conversations
	cl.Clear()

	// Header row.
	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	now := time.Now()
	for i, conv := range conversations {
		row := i + 1
		name := conv.Name
		if name == "" {
			name = conv.Phone
		}
		if conv.UnreadCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, conv.UnreadCount)
		}

		preview := conv.LastMessage
		if conv.Kind == inbox.KindCall {
			preview = callPreview(conv.CallStatus, conv.CallDuration)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+preview).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+timefmt.FormatConversationTime(conv.Time, now, cl.loc)).SetMaxWidth(14))
	}
}

// SelectedConversation returns the id of the currently selected row.
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.conversations) {
		return cl.conversations[idx].ID
	}
	return ""
}

func callPreview(status inbox.CallStatus, duration string) string {
	switch status {
	case inbox.CallMissed:
		return "Missed call"
	case inbox.CallOutgoing:
		if duration != "" {
			return "Outgoing call (" + duration + ")"
		}
		return "Outgoing call"
	case inbox.CallIncoming:
		if duration != "" {
			return "Incoming call (" + duration + ")"
		}
		return "Incoming call"
	default:
		return "Call"
	}
}
