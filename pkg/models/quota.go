package models

// QuotaSnapshot is a read-only view of a user's token consumption against
// their daily and monthly ceilings.
type QuotaSnapshot struct {
	UserID           string `json:"user_id"`
	Day              string `json:"day"`
	DailyUsed        int64  `json:"daily_used"`
	DailyLimit       int64  `json:"daily_limit"`
	DailyRemaining   int64  `json:"daily_remaining"`
	Month            string `json:"month"`
	MonthlyUsed      int64  `json:"monthly_used"`
	MonthlyLimit     int64  `json:"monthly_limit"`
	MonthlyRemaining int64  `json:"monthly_remaining"`
}
