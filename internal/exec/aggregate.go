package exec

import (
	"strconv"

	"github.com/reedbase/reedbase/internal/query"
)

// aggregate computes one aggregate function over rows.
// COUNT(*) counts rows, COUNT(col) counts rows where col is present;
// SUM/AVG/MIN/MAX coerce to float64, silently skipping non-numerics,
// and MIN/MAX/AVG on an empty numeric set return 0.0.
func aggregate(rows []Row, agg *query.Aggregate) string {
	if agg.Func == "COUNT" {
		if agg.Column == "*" {
			return strconv.Itoa(len(rows))
		}
		count := 0
		for _, r := range rows {
			if _, ok := r[agg.Column]; ok {
				count++
			}
		}
		return strconv.Itoa(count)
	}

	var nums []float64
	for _, r := range rows {
		v, ok := r[agg.Column]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		nums = append(nums, f)
	}

	switch agg.Func {
	case "SUM":
		var s float64
		for _, n := range nums {
			s += n
		}
		return formatFloat(s)
	case "AVG":
		if len(nums) == 0 {
			return formatFloat(0)
		}
		var s float64
		for _, n := range nums {
			s += n
		}
		return formatFloat(s / float64(len(nums)))
	case "MIN":
		if len(nums) == 0 {
			return formatFloat(0)
		}
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return formatFloat(m)
	case "MAX":
		if len(nums) == 0 {
			return formatFloat(0)
		}
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return formatFloat(m)
	}
	return ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
