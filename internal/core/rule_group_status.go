package core

import (
	"context"
	"fmt"

	"certcore/pkg/domain"
)

// NewGroupStatusRule returns the in-transaction rule blocking invalid status
// values and warning when the lock flag is raised outside the completed state.
func NewGroupStatusRule() domain.Rule {
	return groupStatusRule{}
}

type groupStatusRule struct{}

var validStatuses = map[domain.GroupStatus]struct{}{
	domain.StatusPlanned:   {},
	domain.StatusActive:    {},
	domain.StatusCompleted: {},
}

func (groupStatusRule) Name() string { return "group_status" }

func (groupStatusRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, group := range view.ListGroups() {
		if _, ok := validStatuses[group.Status]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "group_status",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("group %s has invalid status %q", group.ID, group.Status),
				Entity:   domain.EntityGroup,
				EntityID: group.ID,
			})
			continue
		}
		if group.Locked && group.Status != domain.StatusCompleted {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "group_status",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("group %s carries a lock flag while %s", group.ID, group.Status),
				Entity:   domain.EntityGroup,
				EntityID: group.ID,
			})
		}
	}
	return res, nil
}
