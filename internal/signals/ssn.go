// Package signals implements the per-application fraud signal detectors.
package signals

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pii"
)

// SSN signal contributions.
const (
	ssnDOBMismatchWeight = 0.6
	deathMasterWeight    = 0.8
	invalidSSNWeight     = 0.5
	itinAsSSNWeight      = 0.4
	multipleSSNsWeight   = 0.5
)

// ScoreSSN scores SSN validity flags and returns the triggered signal names.
func ScoreSSN(s domain.SSNSignals) (float64, []string) {
	var score float64
	var triggered []string

	if s.SSNDOBMismatch {
		score += ssnDOBMismatchWeight
		triggered = append(triggered, domain.SignalSSNDOBMismatch)
	}
	if s.DeathMasterMatch {
		score += deathMasterWeight
		triggered = append(triggered, domain.SignalDeathMasterMatch)
	}
	if s.InvalidSSN {
		score += invalidSSNWeight
	}
	if s.ITINAsSSN {
		score += itinAsSSNWeight
	}
	if s.MultipleSSNs {
		score += multipleSSNsWeight
		triggered = append(triggered, domain.SignalMultipleSSNs)
	}

	return domain.Clamp(score), triggered
}

// SSNCheck is the outcome of validating a raw SSN.
type SSNCheck string

const (
	SSNValid         SSNCheck = "valid"
	SSNInvalidFormat SSNCheck = "invalid_format"
	SSNInvalidArea   SSNCheck = "invalid_area"
	SSNInvalidGroup  SSNCheck = "invalid_group"
	SSNITIN          SSNCheck = "itin"
	SSNAdvertising   SSNCheck = "advertising"
	SSNDeathMaster   SSNCheck = "death_master"
)

var ssnPattern = regexp.MustCompile(`^(\d{3})-?(\d{2})-?(\d{4})$`)

// SSNValidator checks raw SSNs for structural validity and Death Master File hits.
type SSNValidator struct {
	deathMaster map[string]bool // SSN hashes
}

// NewSSNValidator creates a validator. deathMasterHashes are pii.Hash values of
// normalized SSNs listed in the Death Master File.
func NewSSNValidator(deathMasterHashes []string) *SSNValidator {
	dm := make(map[string]bool, len(deathMasterHashes))
	for _, h := range deathMasterHashes {
		dm[h] = true
	}
	return &SSNValidator{deathMaster: dm}
}

// Validate classifies a raw SSN.
func (v *SSNValidator) Validate(ssn string) SSNCheck {
	m := ssnPattern.FindStringSubmatch(strings.TrimSpace(ssn))
	if m == nil {
		return SSNInvalidFormat
	}
	area, _ := strconv.Atoi(m[1])
	group, _ := strconv.Atoi(m[2])
	serial, _ := strconv.Atoi(m[3])

	switch {
	case area == 987 && group == 65 && serial >= 4320 && serial <= 4329:
		return SSNAdvertising
	case area >= 900:
		return SSNITIN
	case area == 0 || area == 666:
		return SSNInvalidArea
	case group == 0:
		return SSNInvalidGroup
	case serial == 0:
		return SSNInvalidFormat
	}

	if v.deathMaster[pii.Hash(pii.NormalizeSSN(ssn))] {
		return SSNDeathMaster
	}
	return SSNValid
}

// IssuanceRange is the estimated issuance period of an SSN area number.
type IssuanceRange struct {
	Area      int
	YearStart int // 0 when unknown
	YearEnd   int // 0 when unknown
	State     string
}

// IssuanceResult is the outcome of an SSN issuance vs. DOB check.
type IssuanceResult struct {
	Consistent   bool    `json:"consistent"`
	MismatchType string  `json:"mismatchType,omitempty"`
	Confidence   float64 `json:"confidence"`
	Details      string  `json:"details"`
}

const (
	MismatchBeforeBirth = "ssn_before_birth"
	MismatchTooRecent   = "ssn_too_recent"
)

// RandomizationStart is when the SSA stopped assigning area numbers geographically.
var RandomizationStart = time.Date(2011, time.June, 25, 0, 0, 0, 0, time.UTC)

// IssuanceChecker compares SSN area issuance years with a claimed date of birth.
type IssuanceChecker struct {
	areas map[int]IssuanceRange
}

// NewIssuanceChecker creates a checker from known area ranges.
func NewIssuanceChecker(ranges []IssuanceRange) *IssuanceChecker {
	areas := make(map[int]IssuanceRange, len(ranges))
	for _, r := range ranges {
		areas[r.Area] = r
	}
	return &IssuanceChecker{areas: areas}
}

// LoadIssuanceChecker reads an area mapping CSV with the header
// area_number,year_start,year_end,state.
func LoadIssuanceChecker(r io.Reader) (*IssuanceChecker, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read area mapping header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	if _, ok := cols["area_number"]; !ok {
		return nil, fmt.Errorf("%w: area mapping missing area_number column", domain.ErrInvalidInput)
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var ranges []IssuanceRange
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read area mapping: %w", err)
		}
		area, err := strconv.Atoi(field(rec, "area_number"))
		if err != nil {
			return nil, fmt.Errorf("%w: bad area number %q", domain.ErrInvalidInput, field(rec, "area_number"))
		}
		start, _ := strconv.Atoi(field(rec, "year_start"))
		end, _ := strconv.Atoi(field(rec, "year_end"))
		ranges = append(ranges, IssuanceRange{
			Area:      area,
			YearStart: start,
			YearEnd:   end,
			State:     field(rec, "state"),
		})
	}
	return NewIssuanceChecker(ranges), nil
}

// Check tests whether the SSN's area could have been issued to someone born on dob.
func (c *IssuanceChecker) Check(ssn string, dob time.Time) IssuanceResult {
	digits := pii.NormalizeSSN(ssn)
	if len(digits) < 3 || dob.IsZero() {
		return IssuanceResult{Consistent: true, Details: "insufficient data"}
	}
	area, _ := strconv.Atoi(digits[:3])
	info, ok := c.areas[area]
	if !ok {
		return IssuanceResult{Consistent: true, Details: "no issuance data for area number"}
	}

	if info.YearEnd > 0 && dob.Year() > info.YearEnd {
		return IssuanceResult{
			MismatchType: MismatchBeforeBirth,
			Confidence:   0.95,
			Details:      fmt.Sprintf("SSN area issued before %d, but DOB is %d", info.YearEnd, dob.Year()),
		}
	}

	// Since 1987 SSNs are normally issued at birth.
	if info.YearStart > 0 && dob.Year() >= 1987 && info.YearStart > dob.Year()+5 {
		return IssuanceResult{
			MismatchType: MismatchTooRecent,
			Confidence:   0.7,
			Details:      fmt.Sprintf("SSN area not issued until %d, but DOB is %d", info.YearStart, dob.Year()),
		}
	}

	return IssuanceResult{Consistent: true, Confidence: 0.8, Details: "SSN issuance timing consistent with DOB"}
}

// MismatchScore weights an inconsistent check by its type and confidence.
func (c *IssuanceChecker) MismatchScore(ssn string, dob time.Time) float64 {
	res := c.Check(ssn, dob)
	if res.Consistent {
		return 0
	}
	weight := 0.5
	switch res.MismatchType {
	case MismatchBeforeBirth:
		weight = 1.0
	case MismatchTooRecent:
		weight = 0.6
	}
	return weight * res.Confidence
}

// DeriveSSNSignals builds SSN flags from a raw SSN and claimed DOB.
// Either collaborator may be nil.
func DeriveSSNSignals(v *SSNValidator, c *IssuanceChecker, ssn string, dob time.Time) domain.SSNSignals {
	var s domain.SSNSignals
	if v != nil {
		switch v.Validate(ssn) {
		case SSNInvalidFormat, SSNInvalidArea, SSNInvalidGroup, SSNAdvertising:
			s.InvalidSSN = true
		case SSNITIN:
			s.ITINAsSSN = true
		case SSNDeathMaster:
			s.DeathMasterMatch = true
		}
	}
	if c != nil && !c.Check(ssn, dob).Consistent {
		s.SSNDOBMismatch = true
	}
	return s
}
