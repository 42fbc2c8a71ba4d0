// internal/pkg/money/money.go
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatCents 把以分计的金额渲染成 "12.50" 形式的字符串。
// 存储和领域层一律用 int64 分，避免浮点误差；只有 JSON 边界做展示转换。
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseCents 解析 "12.50" 形式的金额字符串，最多两位小数。
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	yuan, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	if !hasFrac {
		return yuan * 100, nil
	}
	if len(frac) == 0 || len(frac) > 2 {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	if len(frac) == 1 {
		cents *= 10
	}
	if yuan < 0 || strings.HasPrefix(whole, "-") {
		return yuan*100 - cents, nil
	}
	return yuan*100 + cents, nil
}
