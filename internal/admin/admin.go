// Package admin implements the operational commands behind cmd/admin:
// schema creation, calendar seeding, table counts, and destructive resets.
package admin

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirm prompts on stdin before a destructive operation. yes skips the
// prompt.
func confirm(action string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	fmt.Printf("%s. Are you sure? [y/N]: ", action)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
