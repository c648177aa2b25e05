package fingerprint

import (
	"strconv"
	"strings"
)

// Host commands.
const (
	cmdVerify  = "V"
	cmdEnroll  = "E"
	cmdCancel  = "C"
	cmdSlotFmt = "I:%d"
)

// Slot numbering on the reader.
const (
	MinSlot = 0
	MaxSlot = 127
)

type lineKind int

const (
	lineOther lineKind = iota
	lineEnroll
	lineVerify
)

type lineStatus int

const (
	statusNone lineStatus = iota
	statusProgress
	statusSuccess
	statusFailure
	statusAborted
)

// The firmware speaks French; English spellings are accepted too. "SUCCES"
// also matches "SUCCESS".
var (
	enrollTags   = []string{"ENREGISTREMENT:", "ENROLLMENT:", "ENROLL:"}
	verifyTags   = []string{"VERIFICATION:"}
	successTags  = []string{"SUCCES"}
	failureTags  = []string{"ECHEC", "FAILURE", "FAILED"}
	abortedTags  = []string{"ABANDONNE", "ABORTED", "CANCELLED"}
	progressTags = []string{"EN_COURS", "IN-PROGRESS", "IN_PROGRESS"}
)

// classify matches a device line by substring. Lines that match nothing
// (ACK, ERR, INFO, PORTE, CAPTEUR, garbage) come back as lineOther.
func classify(line string) (lineKind, lineStatus) {
	up := strings.ToUpper(line)

	kind := lineOther
	switch {
	case containsAny(up, enrollTags):
		kind = lineEnroll
	case containsAny(up, verifyTags):
		kind = lineVerify
	default:
		return lineOther, statusNone
	}

	// Aborted is checked before failure: an abort line may also carry a
	// failure word.
	switch {
	case containsAny(up, abortedTags):
		return kind, statusAborted
	case containsAny(up, failureTags):
		return kind, statusFailure
	case containsAny(up, successTags):
		return kind, statusSuccess
	case containsAny(up, progressTags):
		return kind, statusProgress
	}
	return kind, statusNone
}

// matchedID returns the last all-digit token in line, or nil.
func matchedID(line string) *int {
	var id *int
	for _, tok := range strings.Fields(line) {
		if !isDigits(tok) {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		id = &n
	}
	return id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
