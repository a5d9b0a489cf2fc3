package utils

import (
	"regexp"
	"strings"
)

// emailPattern accepts the same addresses as the common zod/HTML style
// check: dotted local part, at least one dotted domain label, alpha TLD.
var emailPattern = regexp.MustCompile(`(?i)^[a-z0-9_'+\-.]*[a-z0-9_+\-]@([a-z0-9][a-z0-9\-]*\.)+[a-z]{2,}$`)

// IsValidEmail 校验邮箱格式
func IsValidEmail(email string) bool {
	// RE2 has no lookahead, so the leading-dot and double-dot rules are checked here
	if strings.HasPrefix(email, ".") || strings.Contains(email, "..") {
		return false
	}
	return emailPattern.MatchString(email)
}
