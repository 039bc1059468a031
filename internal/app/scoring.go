package app

import "quiz-battle/internal/domain"

// Grade scores a selection against the question's correct options.
// Any wrong selection zeroes the answer; a subset of the correct options earns
// floor(len(selected)/len(correct) * score). Duplicate ids count once.
func Grade(question domain.Question, selected []string) int {
	correct := question.CorrectOptionIDs()
	if len(correct) == 0 || len(selected) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := correct[id]; !ok {
			return 0
		}
		seen[id] = struct{}{}
	}
	return len(seen) * question.Score / len(correct)
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
