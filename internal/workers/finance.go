package workers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// 2024 CRA figures shared by the quant and compliance workers.
const (
	rrspLimit2024        = 31560
	tfsaLimit2024        = 7000
	fhsaAnnualLimit      = 8000
	fhsaLifetimeLimit    = 40000
	cesgMatchRate        = 0.20
	cesgAnnualMaxPerKid  = 500
	cesgLifetimeMax      = 7200
	cesgContribForMax    = 2500
	oasClawbackThreshold = 90997
)

var federalBrackets2024 = []struct {
	upTo float64
	rate float64
}{
	{55867, 0.15},
	{111733, 0.205},
	{173675, 0.26},
	{235699, 0.29},
}

var rrifMinPctByAge = map[int]float64{
	65: 0.04, 66: 0.0417, 67: 0.0435, 70: 0.05, 75: 0.0582,
	80: 0.0682, 85: 0.0851, 90: 0.1111, 94: 0.1667, 95: 0.20,
}

// estimateMarginalRate approximates the combined federal + provincial
// marginal rate, with the provincial share taken as 55% of federal.
func estimateMarginalRate(income float64) float64 {
	federal := 0.33
	for _, bracket := range federalBrackets2024 {
		if income <= bracket.upTo {
			federal = bracket.rate
			break
		}
	}
	combined := federal + federal*0.55
	return float64(int(combined*100+0.5)) / 100
}

func rrifMinPct(age int) float64 {
	if age < 65 {
		return 0.04
	}
	ages := make([]int, 0, len(rrifMinPctByAge))
	for threshold := range rrifMinPctByAge {
		ages = append(ages, threshold)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ages)))
	for _, threshold := range ages {
		if age >= threshold {
			return rrifMinPctByAge[threshold]
		}
	}
	return 0.04
}

// estimateAge parses a YYYY-MM-DD date of birth. Zero means unknown.
func estimateAge(dob string, now time.Time) int {
	parts := strings.Split(strings.TrimSpace(dob), "-")
	if len(parts) != 3 {
		return 0
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || year == 0 {
		return 0
	}
	age := now.Year() - year
	if int(now.Month()) < month || (int(now.Month()) == month && now.Day() < day) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func dollars(value float64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	whole := int64(value + 0.5)
	raw := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, digit := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if negative {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

func percent(value float64) string {
	return fmt.Sprintf("%.0f%%", value*100)
}

func containsAny(haystack string, needles ...string) bool {
	lowered := strings.ToLower(haystack)
	for _, needle := range needles {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}
