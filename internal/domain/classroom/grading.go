package classroom

import (
	"regexp"
	"strings"
	"time"
)

type contraction struct {
	re   *regexp.Regexp
	full string
}

var contractions []contraction

func init() {
	pairs := [][2]string{
		{"i'm", "i am"}, {"you're", "you are"}, {"he's", "he is"}, {"she's", "she is"},
		{"it's", "it is"}, {"we're", "we are"}, {"they're", "they are"}, {"aren't", "are not"},
		{"can't", "can not"}, {"couldn't", "could not"}, {"didn't", "did not"},
		{"doesn't", "does not"}, {"don't", "do not"}, {"hadn't", "had not"}, {"hasn't", "has not"},
		{"haven't", "have not"}, {"isn't", "is not"}, {"shouldn't", "should not"},
		{"wasn't", "was not"}, {"weren't", "were not"}, {"won't", "will not"},
		{"wouldn't", "would not"}, {"what's", "what is"}, {"where's", "where is"},
		{"when's", "when is"}, {"who's", "who is"}, {"why's", "why is"}, {"how's", "how is"},
		{"let's", "let us"}, {"cannot", "can not"},
	}
	for _, p := range pairs {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(p[0]) + `\b`)
		contractions = append(contractions, contraction{re: re, full: p[1]})
	}
}

var apostrophes = strings.NewReplacer("â€™", "'", "’", "'", "‘", "'")

// NormalizeSpelling makes "I’m fine" and "i am fine" compare equal.
func NormalizeSpelling(s string) string {
	s = apostrophes.Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range contractions {
		s = c.re.ReplaceAllString(s, c.full)
	}
	return strings.Join(strings.Fields(s), " ")
}

// CheckAnswer grades one answer against its question.
func CheckAnswer(q TestQuestion, answer string) bool {
	switch q.Type {
	case StageSpell:
		return NormalizeSpelling(answer) == NormalizeSpelling(q.Word.English)
	case StageChooseTranslation:
		return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.Word.Translation))
	case StageChoosePicture:
		return strings.TrimSpace(answer) == q.Word.ImageURL
	default:
		return false
	}
}

// GradeSubmission scores a student's answers (indexed like questions; missing
// answers count as wrong).
func GradeSubmission(studentID string, questions []TestQuestion, answers []string, at time.Time) StudentTestResult {
	graded := make([]StudentTestAnswer, len(questions))
	correct := 0
	for i, q := range questions {
		raw := ""
		if i < len(answers) {
			raw = answers[i]
		}
		ok := CheckAnswer(q, raw)
		if ok {
			correct++
		}
		graded[i] = StudentTestAnswer{QuestionIndex: i, Answer: raw, IsCorrect: ok}
	}
	score := 0.0
	if len(questions) > 0 {
		score = float64(correct) / float64(len(questions)) * 100
	}
	return StudentTestResult{
		StudentID:   studentID,
		Answers:     graded,
		Score:       score,
		CompletedAt: at.UTC(),
	}
}
