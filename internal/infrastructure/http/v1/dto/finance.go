package dto

import "time"

// ClosingListRequest selects daily closings by date range.
type ClosingListRequest struct {
	From time.Time `form:"from" binding:"required" time_format:"2006-01-02"`
	To   time.Time `form:"to" binding:"required" time_format:"2006-01-02"`
}
