package domain

import "time"

// ElementType names a PII element that identities can share.
type ElementType string

const (
	ElementSSN     ElementType = "ssn"
	ElementAddress ElementType = "address"
	ElementPhone   ElementType = "phone"
	ElementEmail   ElementType = "email"
	ElementDevice  ElementType = "device"
)

// ElementTypes lists every element type in a fixed order.
var ElementTypes = []ElementType{ElementSSN, ElementAddress, ElementPhone, ElementEmail, ElementDevice}

// Identity is an applicant identity. PII is held only as hashes.
type Identity struct {
	ID                string    `json:"identityId"`
	TenantID          string    `json:"tenantId"`
	SSNHash           string    `json:"ssnHash"`
	NameHash          string    `json:"nameHash"`
	AddressHash       string    `json:"addressHash,omitempty"`
	PhoneHash         string    `json:"phoneHash,omitempty"`
	EmailHash         string    `json:"emailHash,omitempty"`
	DeviceFingerprint string    `json:"deviceFingerprint,omitempty"`
	ClaimedDOB        time.Time `json:"claimedDob"`
	SyntheticScore    float64   `json:"syntheticScore"`
	ClusterID         string    `json:"clusterId,omitempty"`
	FirstSeen         time.Time `json:"firstSeen"`
	LastSeen          time.Time `json:"lastSeen"`
}

// Element returns the hash for an element type, or "" when absent.
func (i *Identity) Element(t ElementType) string {
	switch t {
	case ElementSSN:
		return i.SSNHash
	case ElementAddress:
		return i.AddressHash
	case ElementPhone:
		return i.PhoneHash
	case ElementEmail:
		return i.EmailHash
	case ElementDevice:
		return i.DeviceFingerprint
	}
	return ""
}

// ClaimedAgeYears returns the claimed age in years at the given time.
func (i *Identity) ClaimedAgeYears(now time.Time) float64 {
	if i.ClaimedDOB.IsZero() {
		return 0
	}
	days := now.Sub(i.ClaimedDOB).Hours() / 24
	if days < 0 {
		return 0
	}
	return days / 365
}

// SSNSignals are SSN validity flags supplied with an application.
type SSNSignals struct {
	SSNDOBMismatch   bool `json:"ssnDobMismatch"`
	DeathMasterMatch bool `json:"deathMasterMatch"`
	InvalidSSN       bool `json:"invalidSsn"`
	ITINAsSSN        bool `json:"itinAsSsn"`
	MultipleSSNs     bool `json:"multipleSsns"`
}

// DeviceSignals describe the device an application was submitted from.
type DeviceSignals struct {
	WeakBinding       bool `json:"weakBinding"`
	SharedDeviceCount int  `json:"sharedDeviceCount"`
	KnownFraudDevice  bool `json:"knownFraudDevice"`
	EmulatorDetected  bool `json:"emulatorDetected"`
}

// CreditSequence is the monthly account history used for bust-out prediction.
type CreditSequence struct {
	AccountID     string    `json:"accountId"`
	Balances      []float64 `json:"balances"`
	Payments      []float64 `json:"payments"`
	Utilization   []float64 `json:"utilization"`
	CashAdvances  []float64 `json:"cashAdvances"`
	LimitChanges  []float64 `json:"limitChanges"`
	MonthsOnBooks int       `json:"monthsOnBooks"`
}

// ScoringRequest is one application to score.
type ScoringRequest struct {
	TenantID       string          `json:"tenantId"`
	Identity       Identity        `json:"identity"`
	SSN            SSNSignals      `json:"ssnSignals"`
	Device         DeviceSignals   `json:"deviceSignals"`
	Graph          *GraphFeatures  `json:"graphFeatures,omitempty"`
	AccountID      string          `json:"accountId,omitempty"`
	CreditSequence *CreditSequence `json:"creditSequence,omitempty"`
	ReceivedAt     time.Time       `json:"receivedAt"`
}
