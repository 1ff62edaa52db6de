package domain

import "time"

// Purchase is the escrow-side state of a paid job. Once created it is never deleted.
type Purchase struct {
	ID                  string
	JobID               string
	ExternalID          string
	OnChainStatus       *OnChainStatus
	NextAction          NextAction
	NextActionErrorType *string
	NextActionErrorNote *string
	TxHash              *string
	TxStatus            *string
	ResultSubmittedAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PurchaseSnapshot is the escrow service's view of a purchase.
type PurchaseSnapshot struct {
	ExternalID           string
	BlockchainIdentifier string
	OnChainStatus        *OnChainStatus
	NextAction           NextAction
	NextActionErrorType  *string
	NextActionErrorNote  *string
	TxHash               *string
	TxStatus             *string
	ResultSubmittedAt    *time.Time
}

// Apply copies escrow-reported fields onto p.
func (p *Purchase) Apply(s *PurchaseSnapshot) {
	p.ExternalID = s.ExternalID
	p.OnChainStatus = s.OnChainStatus
	p.NextAction = s.NextAction
	p.NextActionErrorType = s.NextActionErrorType
	p.NextActionErrorNote = s.NextActionErrorNote
	p.TxHash = s.TxHash
	p.TxStatus = s.TxStatus
	p.ResultSubmittedAt = s.ResultSubmittedAt
}
