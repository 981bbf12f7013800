package room

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxContentBytes = 4096 // max frame payload size
	MaxContentRunes = 2000 // max character count
)

// ValidateContent checks that a chat message meets content requirements.
func ValidateContent(content string) error {
	if len(content) == 0 {
		return fmt.Errorf("message content is empty")
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxContentBytes)
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return fmt.Errorf("message exceeds %d character limit", MaxContentRunes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
