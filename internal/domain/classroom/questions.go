package classroom

import (
	"math/rand/v2"
	"slices"
)

const choiceOptions = 4

// GenerateQuestions builds one question per word per stage. Words are
// shuffled, each word's stages are shuffled, and the final list is shuffled
// again. Choice questions carry up to four distinct options; a unit with too
// few distinct translations or pictures gets fewer options instead of a hang.
func GenerateQuestions(words []Word, rng *rand.Rand) []TestQuestion {
	if len(words) == 0 {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	shuffled := slices.Clone(words)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	out := make([]TestQuestion, 0, len(words)*len(Stages))
	for _, w := range shuffled {
		stages := slices.Clone(Stages)
		rng.Shuffle(len(stages), func(i, j int) { stages[i], stages[j] = stages[j], stages[i] })
		for _, st := range stages {
			q := TestQuestion{Word: w, Type: st}
			switch st {
			case StageChooseTranslation:
				q.Options = pickOptions(w, words, rng, func(x Word) string { return x.Translation })
			case StageChoosePicture:
				q.Options = pickOptions(w, words, rng, func(x Word) string { return x.ImageURL })
			}
			out = append(out, q)
		}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func pickOptions(correct Word, pool []Word, rng *rand.Rand, field func(Word) string) []string {
	options := []string{field(correct)}
	candidates := make([]string, 0, len(pool))
	for _, w := range pool {
		v := field(w)
		if w.ID == correct.ID || slices.Contains(options, v) || slices.Contains(candidates, v) {
			continue
		}
		candidates = append(candidates, v)
	}
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	for _, c := range candidates {
		if len(options) == choiceOptions {
			break
		}
		options = append(options, c)
	}
	rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return options
}
