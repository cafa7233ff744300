// Package units 提供 wei 与展示单位之间的精确换算，所有聚合都在整数上完成，
// 只有最终展示时才做除法与截断。
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// DisplayDecimals 是平均值、百分比等派生数值的展示精度。
const DisplayDecimals = 6

var (
	weiPerEther = new(big.Int).SetUint64(params.Ether)
	ten         = big.NewInt(10)
)

// ParseWei 解析十进制整数字符串形式的 wei，非法输入返回 false。
func ParseWei(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}

// FormatEther 将 wei 精确换算为 ETH，去掉小数部分末尾的 0。
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, 18)
}

// FormatUnits 按给定小数位换算整数金额，保留全部有效数字。
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}
	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	divisor := new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, divisor, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fraction := fmt.Sprintf("%0*s", decimals, frac.String())
	fraction = strings.TrimRight(fraction, "0")
	return sign + whole.String() + "." + fraction
}

// FormatUnitsTruncated 与 FormatUnits 相同，但小数部分最多保留 digits 位（截断）。
func FormatUnitsTruncated(amount *big.Int, decimals, digits int) string {
	full := FormatUnits(amount, decimals)
	dot := strings.IndexByte(full, '.')
	if dot < 0 || digits < 0 {
		return full
	}
	if len(full)-dot-1 <= digits {
		return full
	}
	cut := strings.TrimRight(full[:dot+1+digits], "0")
	return strings.TrimSuffix(cut, ".")
}

// FormatFixed 以四舍五入的方式输出固定小数位的有理数。
func FormatFixed(value *big.Rat, digits int) string {
	if value == nil {
		value = new(big.Rat)
	}
	return value.FloatString(digits)
}

// WeiToEtherRat 返回以 ETH 为单位的有理数，便于继续做平均值、比例等运算。
func WeiToEtherRat(wei *big.Int) *big.Rat {
	if wei == nil {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(wei, weiPerEther)
}

// Ratio 返回 numerator/denominator，分母为 0 时返回 0。
func Ratio(numerator, denominator *big.Int) *big.Rat {
	if numerator == nil || denominator == nil || denominator.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(numerator, denominator)
}

// Percent 返回 part/total 的百分比，保留一位小数。
func Percent(part, total *big.Int) string {
	r := Ratio(part, total)
	r.Mul(r, big.NewRat(100, 1))
	return FormatFixed(r, 1)
}

// AverageEther 返回平均每笔的 ETH 金额，按 DisplayDecimals 位展示。
func AverageEther(totalWei *big.Int, count int) string {
	if count <= 0 || totalWei == nil {
		return FormatFixed(new(big.Rat), DisplayDecimals)
	}
	avg := WeiToEtherRat(totalWei)
	avg.Quo(avg, new(big.Rat).SetInt64(int64(count)))
	return FormatFixed(avg, DisplayDecimals)
}

// ParseEther 将展示形式的 ETH 金额解析回 wei，超过 18 位小数时返回错误。
func ParseEther(display string) (*big.Int, error) {
	return ParseUnits(display, 18)
}

// ParseUnits 将十进制字符串按给定小数位解析为整数金额。
func ParseUnits(display string, decimals int) (*big.Int, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return nil, fmt.Errorf("金额为空")
	}
	negative := strings.HasPrefix(display, "-")
	display = strings.TrimPrefix(display, "-")

	whole, fraction, _ := strings.Cut(display, ".")
	if whole == "" {
		whole = "0"
	}
	if len(fraction) > decimals {
		return nil, fmt.Errorf("金额 %q 超过 %d 位小数", display, decimals)
	}
	digits := whole + fraction + strings.Repeat("0", decimals-len(fraction))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("无法解析金额 %q", display)
	}
	if negative {
		value.Neg(value)
	}
	return value, nil
}
