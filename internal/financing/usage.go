package financing

import (
	"regexp"
	"strings"
)

// maxUsageLen is the provider-side limit for the usage field.
const maxUsageLen = 255

var whitespace = regexp.MustCompile(`\s`)

// BuildUsage derives the correlation token sent with an offer request and
// echoed back by the provider. Format is "<prefix>-<orderNumber>" with every
// whitespace character in the prefix mapped to a hyphen. When the token would
// exceed 255 characters the prefix is truncated; the order-number suffix never
// is, since it carries the uniqueness.
func BuildUsage(prefix, orderNumber string) string {
	p := whitespace.ReplaceAllString(strings.TrimSpace(prefix), "-")
	usage := p + "-" + orderNumber
	if len(usage) > maxUsageLen {
		over := len(usage) - maxUsageLen
		if over < len(p) {
			p = p[:len(p)-over]
		} else {
			p = ""
		}
		usage = p + "-" + orderNumber
	}
	return usage
}
