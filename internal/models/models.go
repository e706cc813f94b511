package models

import "time"

// Case is one supply–demand pairing moving through the interview pipeline.
// Status holds the current pipeline status name; Active=false means the
// case has been closed (never deleted).
type Case struct {
	ID            int64     `json:"id"`
	SupplyID      int64     `json:"supplyId"`
	DemandID      int64     `json:"demandId"`
	Status        string    `json:"status"`
	Active        bool      `json:"active"`
	Reason        string    `json:"reason,omitempty"`
	ToBeConfirmed bool      `json:"toBeConfirmed"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CaseHistoryEntry is one row of a case's append-only status log.
// Seq is a per-case monotonic sequence number; reads are ordered by it
// rather than by storage insertion order.
type CaseHistoryEntry struct {
	ID        int64     `json:"id"`
	CaseID    int64     `json:"caseId"`
	Seq       int64     `json:"seq"`
	Status    string    `json:"status"`
	Remark    string    `json:"remark,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
