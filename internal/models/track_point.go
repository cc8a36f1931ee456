package models

// TrackPoint is one stored point of an activity
type TrackPoint struct {
	ActivityID int64   `json:"activity_id" db:"activity_id"`
	Seq        int     `json:"seq" db:"seq"` // position within the track
	Longitude  float64 `json:"longitude" db:"longitude"`
	Latitude   float64 `json:"latitude" db:"latitude"`
}
