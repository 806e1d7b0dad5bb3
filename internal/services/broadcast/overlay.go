package broadcast

import (
	"fmt"
	"strings"
)

const maxOverlayTitleLen = 50

// escapeDrawtext escapes ffmpeg filter-graph metacharacters so viewer text
// cannot break out of the drawtext expression. Backslash must go first or
// the escapes themselves get re-escaped.
func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `:`, `\:`)
	return s
}

// overlayFilter builds the drawtext chain: a white attribution line, plus a
// yellow promo line when one was submitted.
func overlayFilter(title, submittedBy, promoLink string) string {
	if runes := []rune(title); len(runes) > maxOverlayTitleLen {
		title = string(runes[:maxOverlayTitleLen])
	}

	filters := []string{
		fmt.Sprintf(
			"drawtext=text='%s':fontsize=24:fontcolor=white:borderw=2:bordercolor=black:x=20:y=h-60",
			escapeDrawtext(title+" - requested by "+submittedBy),
		),
	}
	if promoLink != "" {
		filters = append(filters, fmt.Sprintf(
			"drawtext=text='%s':fontsize=20:fontcolor=yellow:borderw=2:bordercolor=black:x=20:y=h-30",
			escapeDrawtext("Hear more at: "+promoLink),
		))
	}
	return strings.Join(filters, ",")
}
