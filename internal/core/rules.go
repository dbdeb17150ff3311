package core

import "certcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewSingleActiveRule())
	engine.Register(NewUniqueNumberRule())
	engine.Register(NewGroupStatusRule())
	engine.Register(NewPeriodCoverageRule())
	return engine
}
