package classroom

import "time"

type Stage string

const (
	StageSpell             Stage = "spell"
	StageChooseTranslation Stage = "choose_translation"
	StageChoosePicture     Stage = "choose_picture"
)

// Stages lists every question type, in the order lessons present them.
var Stages = []Stage{StageSpell, StageChooseTranslation, StageChoosePicture}

type Answer struct {
	WordID    string `json:"wordId"`
	Stage     Stage  `json:"stage"`
	Answer    string `json:"answer"`
	IsCorrect bool   `json:"isCorrect"`
}

type AttemptHistory struct {
	AttemptNumber int       `json:"attemptNumber"`
	Score         float64   `json:"score"`
	CompletedAt   time.Time `json:"completedAt"`
	Answers       []Answer  `json:"answers"`
}

// RoundProgress is unique per (student, unit, round). The owning student's
// client replaces the whole record on every save.
type RoundProgress struct {
	ID        string           `json:"id"`
	StudentID string           `json:"student_id"`
	UnitID    string           `json:"unit_id"`
	RoundID   string           `json:"round_id"`
	Completed bool             `json:"completed"`
	History   []AttemptHistory `json:"history"`
	Attempts  int              `json:"attempts"`
	CreatedAt time.Time        `json:"created_at"`
}

type ProgressKey struct {
	StudentID string
	UnitID    string
	RoundID   string
}

func (p RoundProgress) Key() ProgressKey {
	return ProgressKey{StudentID: p.StudentID, UnitID: p.UnitID, RoundID: p.RoundID}
}

// RecordAttempt appends one finished attempt. History is append-only; the
// returned record is what the student's client saves.
func (p RoundProgress) RecordAttempt(answers []Answer, questions int, at time.Time) RoundProgress {
	correct := 0
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		}
	}
	score := 0.0
	if questions > 0 {
		score = float64(correct) / float64(questions) * 100
	}
	history := make([]AttemptHistory, len(p.History), len(p.History)+1)
	copy(history, p.History)
	history = append(history, AttemptHistory{
		AttemptNumber: len(p.History) + 1,
		Score:         score,
		CompletedAt:   at.UTC(),
		Answers:       append([]Answer(nil), answers...),
	})
	p.History = history
	p.Attempts = len(history)
	p.Completed = true
	return p
}

// BestScore returns the highest attempt score, or 0 without attempts.
func (p RoundProgress) BestScore() float64 {
	best := 0.0
	for _, h := range p.History {
		if h.Score > best {
			best = h.Score
		}
	}
	return best
}
