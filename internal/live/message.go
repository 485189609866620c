package live

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"genflow/internal/domain"
)

const maxDetailInMessage = 160

func kindLabel(kind domain.Kind) string {
	return cases.Title(language.English).String(string(kind))
}

// notificationMessage renders the user facing text for a terminal job.
func notificationMessage(job domain.Job) string {
	label := kindLabel(job.Kind)
	if job.State == domain.StateCompleted {
		return fmt.Sprintf("%s generation completed", label)
	}
	detail := strings.TrimSpace(job.ErrorDetail)
	if detail == "" {
		return fmt.Sprintf("%s generation failed", label)
	}
	if r := []rune(detail); len(r) > maxDetailInMessage {
		detail = string(r[:maxDetailInMessage]) + "…"
	}
	return fmt.Sprintf("%s generation failed: %s", label, detail)
}

func transitionFor(state domain.State) domain.TransitionType {
	if state == domain.StateCompleted {
		return domain.TransitionCompletion
	}
	return domain.TransitionFailure
}
