package grading

import (
	"github.com/mind-engage/mindengage-grades/internal/course"
)

// Overall is the weighted average of weighted lines plus the sum of the
// additive ones.
func Overall(lines []Line) (float64, error) {
	var sum, weights, extra float64
	for _, l := range lines {
		if l.Weighted() {
			sum += l.Credit * *l.Weight
			weights += *l.Weight
			continue
		}
		extra += l.Credit
	}
	if weights == 0 {
		return 0, &course.ConfigurationError{Field: "weight", Reason: "no weighted assessments to average"}
	}
	return sum/weights + extra, nil
}

// BuildReport assembles a report and assigns the letter grade.
func BuildReport(userID int64, lines []Line, letters course.LetterTable) (Report, error) {
	if len(letters) == 0 {
		return Report{}, &course.ConfigurationError{Field: "letter_grades", Reason: "table is empty"}
	}
	overall, err := Overall(lines)
	if err != nil {
		return Report{}, err
	}
	return Report{
		UserID:       userID,
		Grades:       lines,
		OverallGrade: overall,
		LetterGrade:  letters.Letter(overall),
	}, nil
}
