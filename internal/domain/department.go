package domain

import "time"

// Department groups tickets and staff; SLA compliance is reported per department.
type Department struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}
