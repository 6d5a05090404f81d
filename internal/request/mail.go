package request

import (
	"strings"

	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Report categories for the message list.
const (
	ReportCategoryBattle = 1
	ReportCategorySpy    = 2
	ReportCategoryTrade  = 3
)

// Reports fetches the message list of one category.
type Reports struct {
	Category int
}

func (Reports) Command() string { return "rep" }

func (r Reports) Payload() (any, error) {
	if r.Category <= 0 {
		return nil, &gameerr.ValidationError{Field: "category", Reason: "must be positive"}
	}
	return map[string]any{"C": r.Category}, nil
}

// ReportDetails fetches the full body of one report.
type ReportDetails struct {
	ReportID int64
}

func (ReportDetails) Command() string { return "red" }

func (r ReportDetails) Payload() (any, error) {
	if r.ReportID <= 0 {
		return nil, &gameerr.ValidationError{Field: "report_id", Reason: "must be positive"}
	}
	return map[string]any{"RID": r.ReportID}, nil
}

// SendMail delivers a private message to another player.
type SendMail struct {
	RecipientID int64
	Subject     string
	Body        string
}

func (SendMail) Command() string { return "smg" }

func (s SendMail) Payload() (any, error) {
	if s.RecipientID <= 0 {
		return nil, &gameerr.ValidationError{Field: "recipient_id", Reason: "must be positive"}
	}
	if strings.TrimSpace(s.Subject) == "" {
		return nil, &gameerr.ValidationError{Field: "subject", Reason: "must not be empty"}
	}
	return map[string]any{"RID": s.RecipientID, "S": s.Subject, "M": s.Body}, nil
}

// ReadMail marks a message as read and fetches its body.
type ReadMail struct {
	MessageID int64
}

func (ReadMail) Command() string { return "rma" }

func (r ReadMail) Payload() (any, error) {
	if r.MessageID <= 0 {
		return nil, &gameerr.ValidationError{Field: "message_id", Reason: "must be positive"}
	}
	return map[string]any{"MID": r.MessageID}, nil
}

// DeleteMail removes a message.
type DeleteMail struct {
	MessageID int64
}

func (DeleteMail) Command() string { return "dma" }

func (d DeleteMail) Payload() (any, error) {
	if d.MessageID <= 0 {
		return nil, &gameerr.ValidationError{Field: "message_id", Reason: "must be positive"}
	}
	return map[string]any{"MID": d.MessageID}, nil
}
