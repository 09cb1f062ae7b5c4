package domain

import "fmt"

// CategoryScore is one rubric category of a session score.
type CategoryScore struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Score    int     `json:"score"`
	Weight   float64 `json:"weight"`
	Feedback string  `json:"feedback,omitempty"`
}

// Score is the structured evaluation of a finished session.
type Score struct {
	Value        int             `json:"value"`
	Grade        string          `json:"grade"`
	Breakdown    []CategoryScore `json:"breakdown"`
	Strengths    []string        `json:"strengths,omitempty"`
	Improvements []string        `json:"improvements,omitempty"`
	Feedback     string          `json:"feedback,omitempty"`
}

// Clone returns a deep copy of the score.
func (s Score) Clone() Score {
	out := s
	out.Breakdown = append([]CategoryScore(nil), s.Breakdown...)
	out.Strengths = append([]string(nil), s.Strengths...)
	out.Improvements = append([]string(nil), s.Improvements...)
	return out
}

// NewScore computes the weighted value, grade, strengths and improvements of a breakdown.
func NewScore(breakdown []CategoryScore, feedback string) Score {
	var total float64
	var strengths, improvements []string
	for _, c := range breakdown {
		total += float64(clampScore(c.Score)) * c.Weight
		switch {
		case c.Score >= 80:
			strengths = append(strengths, fmt.Sprintf("Strong %s", c.Label))
		case c.Score < 65:
			improvements = append(improvements, fmt.Sprintf("Improve %s", c.Label))
		}
	}
	value := clampScore(int(total + 0.5))
	return Score{
		Value:        value,
		Grade:        Grade(value),
		Breakdown:    breakdown,
		Strengths:    strengths,
		Improvements: improvements,
		Feedback:     feedback,
	}
}

// Grade maps a 0-100 value to a letter grade.
func Grade(value int) string {
	switch {
	case value >= 90:
		return "A+"
	case value >= 85:
		return "A"
	case value >= 80:
		return "B+"
	case value >= 75:
		return "B"
	case value >= 70:
		return "C+"
	case value >= 65:
		return "C"
	case value >= 60:
		return "D"
	default:
		return "F"
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
