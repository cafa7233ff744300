package analysis

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const dateLayout = "2006-01-02"

// report 逐行拼接 markdown 文本。
type report struct {
	lines []string
}

func (r *report) line(format string, args ...any) {
	if len(args) == 0 {
		r.lines = append(r.lines, format)
		return
	}
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

// raw 原样追加一行，不做格式化。
func (r *report) raw(text string) {
	r.lines = append(r.lines, text)
}

func (r *report) blank() {
	r.lines = append(r.lines, "")
}

func (r *report) String() string {
	return strings.Join(r.lines, "\n")
}

// daysSince 返回从 ts 到 now 的完整天数。
func daysSince(now, ts time.Time) int {
	if ts.IsZero() {
		return -1
	}
	d := now.Sub(ts)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

func describeDays(days int) string {
	switch {
	case days < 0:
		return "Unknown"
	case days == 0:
		return "Today"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatDate(ts time.Time) string {
	if ts.IsZero() {
		return "Unknown"
	}
	return ts.UTC().Format(dateLayout)
}

func formatTimestamp(ts time.Time, ok bool, raw string) string {
	if !ok {
		if raw == "" {
			return "N/A"
		}
		return raw
	}
	return ts.UTC().Format("2006-01-02 15:04:05 UTC")
}

// groupDigits 为大整数加千位分隔符。
func groupDigits(v *big.Int) string {
	if v == nil {
		return "N/A"
	}
	return humanize.BigComma(v)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func shorten(v string, n int) string {
	if len(v) <= n {
		return v
	}
	return v[:n] + "..."
}

func addressLine(r *report, label, address string) {
	r.line("%s: %s", label, orDefault(address, "N/A"))
}
