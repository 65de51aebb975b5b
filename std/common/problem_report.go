package common

import (
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/decorator"
)

// ProblemReport problem report definition
type ProblemReport struct {
	Type           string            `json:"@type"`
	ID             string            `json:"@id"`
	Description    Code              `json:"description"`
	ExplainLongTxt string            `json:"explain-ltxt,omitempty"` // ACApy
	Thread         *decorator.Thread `json:"~thread,omitempty"`
}

// Code represents a problem report code
type Code struct {
	En   string `json:"en,omitempty"`
	Code string `json:"code"`
}

// NewProblemReport creates a problem report for the message which id is
// given as the parent thread id.
func NewProblemReport(code, text, pthID string) *ProblemReport {
	return &ProblemReport{
		Type:        pltype.NotificationProblemReport,
		ID:          utils.UUID(),
		Description: Code{En: text, Code: code},
		Thread:      &decorator.Thread{PID: pthID},
	}
}
