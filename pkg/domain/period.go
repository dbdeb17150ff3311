package domain

import "time"

// PeriodLength is the fixed span of one training period.
const PeriodLength = 7 * 24 * time.Hour

// PeriodKey normalizes a timestamp to the UTC midnight that identifies its
// period. Participants and groups referencing the same period always carry
// the same key.
func PeriodKey(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	day := PeriodKey(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

// PeriodEnd returns the exclusive end of the period starting at start.
func PeriodEnd(start time.Time) time.Time {
	return PeriodKey(start).AddDate(0, 0, 7)
}

// NextPeriod returns the start of the period following start.
func NextPeriod(start time.Time) time.Time {
	return PeriodKey(start).AddDate(0, 0, 7)
}

// ValidateMedicalDate checks that the exam date falls on or before the
// period start and within the 6-calendar-month validity window ending at it.
func ValidateMedicalDate(exam, periodStart time.Time) error {
	exam = PeriodKey(exam)
	periodStart = PeriodKey(periodStart)
	if exam.After(periodStart) {
		return MedicalExpiredError{ExamDate: exam, PeriodStart: periodStart}
	}
	if exam.AddDate(0, 6, 0).Before(periodStart) {
		return MedicalExpiredError{ExamDate: exam, PeriodStart: periodStart}
	}
	return nil
}
