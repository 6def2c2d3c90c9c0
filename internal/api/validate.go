package api

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxContentBytes = 4096 // 4KB max payload size
	MaxContentChars = 2000 // max character count
	MaxChatName     = 128
	MaxGroupMembers = 256
)

// ValidateContent checks that message content meets the same limits the
// relay enforces on its frames.
func ValidateContent(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("content is empty")
	}
	if len(text) > MaxContentBytes {
		return fmt.Errorf("content exceeds %d byte limit", MaxContentBytes)
	}
	if utf8.RuneCountInString(text) > MaxContentChars {
		return fmt.Errorf("content exceeds %d character limit", MaxContentChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("content contains invalid UTF-8")
	}
	return nil
}

// ValidateGroup checks group chat creation parameters.
func ValidateGroup(name string, members []string) error {
	if name == "" {
		return fmt.Errorf("group name is empty")
	}
	if utf8.RuneCountInString(name) > MaxChatName {
		return fmt.Errorf("group name exceeds %d character limit", MaxChatName)
	}
	if len(members) == 0 {
		return fmt.Errorf("group has no members")
	}
	if len(members) > MaxGroupMembers {
		return fmt.Errorf("group exceeds %d member limit", MaxGroupMembers)
	}
	return nil
}
