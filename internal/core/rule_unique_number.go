package core

import (
	"context"
	"fmt"

	"certcore/pkg/domain"
)

// NewUniqueNumberRule returns the in-transaction rule enforcing global
// uniqueness of issued certificate numbers across live and archived
// participants.
func NewUniqueNumberRule() domain.Rule {
	return uniqueNumberRule{}
}

type uniqueNumberRule struct{}

func (uniqueNumberRule) Name() string { return "unique_certificate_number" }

func (uniqueNumberRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	holders := make(map[string][]string)
	record := func(p domain.Participant) {
		if p.UniqueNumber == "" {
			return
		}
		holders[p.UniqueNumber] = append(holders[p.UniqueNumber], p.ID)
	}
	for _, p := range view.ListParticipants() {
		record(p)
	}
	for _, archive := range view.ListArchives() {
		for _, p := range archive.Participants {
			record(p)
		}
	}

	res := domain.Result{}
	for number, ids := range holders {
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "unique_certificate_number",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("certificate number %s held by %d participants", number, len(ids)),
				Entity:   domain.EntityParticipant,
				EntityID: id,
			})
		}
	}
	return res, nil
}
