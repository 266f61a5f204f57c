package entities

import "regexp"

var (
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	scheduleTime    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	validStatusCode = map[int]bool{ReadStatusNotStarted: true, ReadStatusReading: true, ReadStatusFinished: true}
)

// ValidISBN accepts ISBN-10 or ISBN-13 strings as Kobo stores them.
func ValidISBN(isbn string) bool {
	return len(isbn) == 10 || len(isbn) == 13
}

// ValidUUID checks the 8-4-4-4-12 hex shape used by Notion database ids.
func ValidUUID(id string) bool {
	return uuidPattern.MatchString(id)
}

// ValidScheduleTime checks 24-hour HH:MM.
func ValidScheduleTime(t string) bool {
	return scheduleTime.MatchString(t)
}

// ValidReadStatus checks Kobo ReadStatus enum membership.
func ValidReadStatus(code int) bool {
	return validStatusCode[code]
}
