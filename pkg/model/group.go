package model

import (
	"errors"
	"fmt"
)

// GlobalGroup is the reserved group that implicitly contains every logged-in
// user. It exists for the lifetime of the process and cannot be created,
// joined, or left explicitly.
const GlobalGroup = "Global"

const MaxGroupNameLength = 64

var ErrGroupNameEmpty = errors.New("group name must not be empty")
var ErrGroupNameTooLong = fmt.Errorf("group name must not exceed %d characters", MaxGroupNameLength)
var ErrGroupNameInvalidChars = errors.New("group name must contain only alphanumeric characters, underscores, or hyphens")
var ErrGroupNameReserved = fmt.Errorf("group name %q is reserved", GlobalGroup)

// ValidateGroupName checks that a group name is 1-64 ASCII alphanumeric,
// underscore, or hyphen characters and is not the reserved Global name.
// The charset restriction keeps names free of the frame field delimiter.
func ValidateGroupName(name string) error {
	if len(name) == 0 {
		return ErrGroupNameEmpty
	}
	if len(name) > MaxGroupNameLength {
		return ErrGroupNameTooLong
	}
	if name == GlobalGroup {
		return ErrGroupNameReserved
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrGroupNameInvalidChars
		}
	}
	return nil
}
