package model

import "time"

// Project is one customer engagement moving through the installation pipeline.
// CurrentStage is always within [1,12]; any stage may follow any other, since
// back-office corrections move projects backwards as well as forwards.
type Project struct {
	ID          string
	OrgID       string
	Branch      string
	ClientName  string
	ClientPhone string
	ClientEmail string
	Address     string
	ServiceType string
	Value       float64
	CurrentStage int
	InstallerID  string

	// Milestone timestamps, nil until the milestone is reached.
	MeasuredAt        *time.Time
	QuotedAt          *time.Time
	ContractSignedAt  *time.Time
	MaterialOrderedAt *time.Time
	MaterialArrivedAt *time.Time
	InstallationAt    *time.Time
	CompletedAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Active    bool

	// Version increments on every stage write and backs the optimistic
	// concurrency check in the repository.
	Version int
}
