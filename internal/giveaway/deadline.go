package giveaway

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var deadlineParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDeadline resolves a natural-language end time ("tomorrow 18:00",
// "next friday at 9pm") relative to now. The result must lie in the future.
func ParseDeadline(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty end time: %w", ErrInvalidFormat)
	}
	r, err := deadlineParser.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w: %v", text, ErrInvalidFormat, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%q: %w", text, ErrInvalidFormat)
	}
	if !r.Time.After(now) {
		return time.Time{}, fmt.Errorf("%q is not in the future: %w", text, ErrInvalidDuration)
	}
	return r.Time, nil
}
