package engine

import (
	"math"
	"time"
)

// ConsumptionSummary carries the figures derived from a device's 7-day
// window. DaysUntilEmpty is nil when average consumption is zero and the
// estimate is therefore undefined; that is a legitimate result, not an error.
type ConsumptionSummary struct {
	TodayLiters        float64
	WeekLiters         float64
	DailyAverageLiters float64
	DaysUntilEmpty     *float64
}

// DailyForecast projects consumption for one future calendar day.
type DailyForecast struct {
	Date                string  `json:"date"`
	PredictedConsumption float64 `json:"predicted_consumption"`
}

// Predict derives consumption and depletion figures from a chronological
// window of readings. Readings are bucketed by UTC calendar day; a day
// contributes only when it holds at least two readings, as
//
//	liters = |levelLast - levelFirst| * π*r² / 1000
//
// with the tank radius taken from the device configuration. The result is
// deterministic for a given window: same input, same figures.
func Predict(window []Reading, cfg DeviceConfig, currentPercent float64, now time.Time) ConsumptionSummary {
	radius := cfg.TankDiameterCm / 2
	area := math.Pi * radius * radius

	var summary ConsumptionSummary
	today := now.UTC().Truncate(24 * time.Hour)

	for _, bucket := range dayBuckets(window) {
		if len(bucket) < 2 {
			continue
		}
		first := bucket[0]
		last := bucket[len(bucket)-1]
		liters := math.Abs(last.LevelCm-first.LevelCm) * area / 1000
		summary.WeekLiters += liters
		if first.Timestamp.UTC().Truncate(24 * time.Hour).Equal(today) {
			summary.TodayLiters = liters
		}
	}

	summary.DailyAverageLiters = summary.WeekLiters / 7

	if currentPercent <= 0 {
		zero := 0.0
		summary.DaysUntilEmpty = &zero
		return summary
	}
	if summary.DailyAverageLiters <= 0 {
		return summary
	}

	remaining := currentPercent / 100 * cfg.TankCapacityLiters
	days := math.Max(0, remaining/summary.DailyAverageLiters)
	summary.DaysUntilEmpty = &days
	return summary
}

// Forecast projects N days ahead by repeating the daily average; there is no
// per-day model.
func Forecast(summary ConsumptionSummary, days int, now time.Time) []DailyForecast {
	if days <= 0 {
		return nil
	}
	forecasts := make([]DailyForecast, 0, days)
	start := now.UTC()
	for i := range days {
		forecasts = append(forecasts, DailyForecast{
			Date:                 start.AddDate(0, 0, i).Format("2006-01-02"),
			PredictedConsumption: summary.DailyAverageLiters,
		})
	}
	return forecasts
}

// dayBuckets splits a chronological window into per-calendar-day groups,
// preserving order inside each group.
func dayBuckets(window []Reading) [][]Reading {
	var buckets [][]Reading
	var currentDay time.Time
	for _, r := range window {
		day := r.Timestamp.UTC().Truncate(24 * time.Hour)
		if len(buckets) == 0 || !day.Equal(currentDay) {
			buckets = append(buckets, nil)
			currentDay = day
		}
		buckets[len(buckets)-1] = append(buckets[len(buckets)-1], r)
	}
	return buckets
}
