package core

import (
	"context"
	"fmt"
	"time"

	"certcore/pkg/domain"
)

// NewPeriodCoverageRule returns the in-transaction rule checking that every
// participant period has a group row. Warn severity only: the synchronizer
// repairs missing rows on its next run.
func NewPeriodCoverageRule() domain.Rule {
	return periodCoverageRule{}
}

type periodCoverageRule struct{}

func (periodCoverageRule) Name() string { return "period_coverage" }

func (periodCoverageRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	covered := make(map[time.Time]struct{})
	for _, group := range view.ListGroups() {
		covered[domain.PeriodKey(group.PeriodStart)] = struct{}{}
	}

	res := domain.Result{}
	for _, p := range view.ListParticipants() {
		key := domain.PeriodKey(p.PeriodStart)
		if _, ok := covered[key]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "period_coverage",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("participant %s references period %s with no group row", p.ID, key.Format("2006-01-02")),
				Entity:   domain.EntityParticipant,
				EntityID: p.ID,
			})
		}
	}
	return res, nil
}
