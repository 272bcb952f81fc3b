package onboarding

import "strings"

type confirmation int

const (
	confirmAmbiguous confirmation = iota
	confirmYes
	confirmNo
)

var yesWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "yup": true,
	"sure": true, "correct": true, "right": true, "ok": true, "okay": true,
	"confirm": true, "confirmed": true, "looks good": true, "perfect": true,
}

var noWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true,
	"wrong": true, "incorrect": true, "not right": true, "change": true,
}

// classifyConfirmation buckets a confirmation reply. Anything that is not a
// clear yes or no is ambiguous and counts against the auto-confirm cap.
func classifyConfirmation(utterance string) confirmation {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	normalized = strings.Trim(normalized, ".!?")
	if yesWords[normalized] {
		return confirmYes
	}
	if noWords[normalized] {
		return confirmNo
	}
	// Short replies that lead with a clear yes/no word still count.
	first, _, _ := strings.Cut(normalized, " ")
	if len(strings.Fields(normalized)) <= 3 {
		if yesWords[first] {
			return confirmYes
		}
		if noWords[first] {
			return confirmNo
		}
	}
	return confirmAmbiguous
}
