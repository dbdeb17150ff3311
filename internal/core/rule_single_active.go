package core

import (
	"context"
	"fmt"

	"certcore/pkg/domain"
)

// NewSingleActiveRule returns the in-transaction rule enforcing that at most
// one group is active at any time.
func NewSingleActiveRule() domain.Rule {
	return singleActiveRule{}
}

type singleActiveRule struct{}

func (singleActiveRule) Name() string { return "single_active_group" }

func (singleActiveRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	var active []domain.Group
	for _, group := range view.ListGroups() {
		if group.Status == domain.StatusActive {
			active = append(active, group)
		}
	}

	res := domain.Result{}
	if len(active) > 1 {
		for _, group := range active {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_active_group",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%d groups active at once; group %s (period %s) must not remain active", len(active), group.ID, group.PeriodStart.Format("2006-01-02")),
				Entity:   domain.EntityGroup,
				EntityID: group.ID,
			})
		}
	}
	return res, nil
}
