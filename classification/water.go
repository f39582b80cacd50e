package classification

import (
	"fmt"
	"time"

	"github.com/floodsnet/floodprep/common"
)

// Water history codes
const (
	// Yearly history
	YearlyNoData    = 0
	YearlyNotWater  = 1
	YearlySeasonal  = 2
	YearlyPermanent = 3
	// Monthly history
	MonthlyNoData   = 0
	MonthlyNotWater = 1
	MonthlyWater    = 2
)

// Water occurrence classes
const (
	ClassNone      = 0
	ClassSeasonal  = 1
	ClassPermanent = 2
)

// Remapping rules of the water occurrence classification
var (
	// PermanentYear maps a yearly code to 0 (land or seasonal), 1 (permanent), 3 (no data)
	PermanentYear = common.Remap{From: []int{0, 1, 2, 3}, To: []int{3, 0, 0, 1}, Default: 5}
	// PermanentSum keeps the pixels permanent both years (1+1) or permanent once with no data the other year (1+3)
	PermanentSum = common.Remap{From: []int{2, 4}, To: []int{2, 2}, Default: 0}
	// MonthWater and MonthValid count the water and valid observations of a month
	MonthWater = common.Remap{From: []int{2}, To: []int{1}, Default: 0}
	MonthValid = common.Remap{From: []int{1, 2}, To: []int{1, 1}, Default: 0}
	// SeasonalThreshold: any water observation within the window counts as seasonal water
	SeasonalThreshold = common.Remap{From: []int{0}, To: []int{0}, Default: 1}
	// MonthPresence and MonthSum are the monthly variant of the seasonal layer (same month of the two previous years)
	MonthPresence = common.Remap{From: []int{0, 1, 2}, To: []int{3, 0, 1}, Default: 5}
	MonthSum      = common.Remap{From: []int{2, 4}, To: []int{1, 1}, Default: 0}
	// FinalClasses combines seasonal+permanent into {none, seasonal, permanent}
	FinalClasses = common.Remap{From: []int{1, 2, 3}, To: []int{1, 2, 2}, Default: 0}
)

// Season returns the first month of the meteorological season of the month (3, 6, 9 or 12)
func Season(month time.Month) int {
	switch {
	case month >= 3 && month < 6:
		return 3
	case month >= 6 && month < 9:
		return 6
	case month >= 9 && month < 12:
		return 9
	}
	return 12
}

// CalendarRange selects the months in [FromMonth, ToMonth] (wrapping around december if FromMonth > ToMonth)
// of the years in [FromYear, ToYear]
type CalendarRange struct {
	FromMonth int `json:"from_month"`
	ToMonth   int `json:"to_month"`
	FromYear  int `json:"from_year"`
	ToYear    int `json:"to_year"`
}

// Contains returns true if the month of the year is selected
func (r CalendarRange) Contains(year int, month int) bool {
	if year < r.FromYear || year > r.ToYear {
		return false
	}
	if r.FromMonth <= r.ToMonth {
		return month >= r.FromMonth && month <= r.ToMonth
	}
	return month >= r.FromMonth || month <= r.ToMonth
}

// YearMonth is one month of the monthly history
type YearMonth struct {
	Year  int
	Month int
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%d-%02d", ym.Year, ym.Month)
}

// Window is the temporal window of the water history of an event
type Window struct {
	FloodYear int  `json:"flood_year"`
	Season    int  `json:"season"` // First month of the season, or the month of the flood (Monthly)
	Monthly   bool `json:"monthly"`
	// PermanentYears are the two years preceding the flood in the yearly history
	PermanentYears [2]int `json:"permanent_years"`
	// Ranges select the months of the monthly history
	Ranges []CalendarRange `json:"ranges"`
}

// NewWindow computes the water history window of a flood. If maxYear > 0, the flood year is capped to maxYear
// (last year of the history).
//
// Seasonal: the three months of the season of the two previous years. The winter season wraps around the year:
// december, january and february of floodYear-1, january and february of floodYear, december of floodYear-2.
// Monthly: the month of the flood of the two previous years.
func NewWindow(date time.Time, maxYear int, monthly bool) Window {
	yr := date.Year()
	if maxYear > 0 && yr > maxYear {
		yr = maxYear
	}
	w := Window{
		FloodYear:      yr,
		Monthly:        monthly,
		PermanentYears: [2]int{yr - 2, yr - 1},
	}
	if monthly {
		m := int(date.Month())
		w.Season = m
		w.Ranges = []CalendarRange{{m, m, yr - 2, yr - 2}, {m, m, yr - 1, yr - 1}}
		return w
	}
	w.Season = Season(date.Month())
	if w.Season < 12 {
		w.Ranges = []CalendarRange{{w.Season, w.Season + 2, yr - 2, yr - 1}}
	} else {
		w.Ranges = []CalendarRange{{12, 2, yr - 1, yr - 1}, {1, 2, yr, yr}, {12, 12, yr - 2, yr - 2}}
	}
	return w
}

// Months returns the months selected by the window, in chronological order
func (w Window) Months() []YearMonth {
	var months []YearMonth
	for y := w.FloodYear - 2; y <= w.FloodYear; y++ {
		for m := 1; m <= 12; m++ {
			for _, r := range w.Ranges {
				if r.Contains(y, m) {
					months = append(months, YearMonth{y, m})
					break
				}
			}
		}
	}
	return months
}

// Name returns the raw name of the water history export of the event
func (w Window) Name(eventID string) string {
	return common.WaterHistoryName(eventID, w.FloodYear, w.Season, w.Monthly)
}

// ClassifyWaterHistory classifies every pixel into {ClassNone, ClassSeasonal, ClassPermanent}
// yearly are the yearly codes of PermanentYears, monthly the monthly codes of the months of the window
// (in any order). All the slices have the same length. Pixels without valid monthly observation are ClassNone.
func ClassifyWaterHistory(w Window, yearly [2][]int, monthly [][]int) ([]int, error) {
	n := len(yearly[0])
	if len(yearly[1]) != n {
		return nil, fmt.Errorf("ClassifyWaterHistory: yearly layers have different sizes")
	}
	for _, m := range monthly {
		if len(m) != n {
			return nil, fmt.Errorf("ClassifyWaterHistory: monthly layers have different sizes")
		}
	}
	if w.Monthly && len(monthly) != 2 {
		return nil, fmt.Errorf("ClassifyWaterHistory: monthly variant expects 2 layers, got %d", len(monthly))
	}

	classes := make([]int, n)
	for i := 0; i < n; i++ {
		permanent := PermanentSum.Apply(PermanentYear.Apply(yearly[0][i]) + PermanentYear.Apply(yearly[1][i]))
		var seasonal int
		if w.Monthly {
			seasonal = MonthSum.Apply(MonthPresence.Apply(monthly[0][i]) + MonthPresence.Apply(monthly[1][i]))
		} else {
			var water, valid int
			for _, m := range monthly {
				water += MonthWater.Apply(m[i])
				valid += MonthValid.Apply(m[i])
			}
			if valid == 0 {
				// Masked
				classes[i] = ClassNone
				continue
			}
			seasonal = SeasonalThreshold.Apply(100 * water / valid)
		}
		classes[i] = FinalClasses.Apply(seasonal + permanent)
	}
	return classes, nil
}
