package bureau

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// StaticConnector serves credit files from a fixed set, usually loaded from
// a JSON fixtures file. It is safe for concurrent use once built.
type StaticConnector struct {
	files map[string]*domain.CreditFile
	now   func() time.Time
}

// NewStatic creates a connector over the given files, keyed by SSN hash.
func NewStatic(files []domain.CreditFile) *StaticConnector {
	s := &StaticConnector{
		files: make(map[string]*domain.CreditFile, len(files)),
		now:   time.Now,
	}
	for i := range files {
		f := files[i]
		s.files[f.SSNHash] = &f
	}
	return s
}

// LoadStatic reads a JSON array of credit files.
func LoadStatic(path string) (*StaticConnector, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: bureau fixtures path is required", domain.ErrInvalidInput)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bureau fixtures: %w", err)
	}

	var files []domain.CreditFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, fmt.Errorf("failed to parse bureau fixtures: %w", err)
	}
	for i, f := range files {
		if f.SSNHash == "" {
			return nil, fmt.Errorf("%w: bureau fixture %d has no ssnHash", domain.ErrInvalidInput, i)
		}
	}
	return NewStatic(files), nil
}

// WithClock overrides the clock used to age files without an explicit age.
func (s *StaticConnector) WithClock(now func() time.Time) *StaticConnector {
	s.now = now
	return s
}

func (s *StaticConnector) GetCreditFile(_ context.Context, ssnHash string) (*domain.CreditFile, error) {
	f, ok := s.files[ssnHash]
	if !ok {
		return nil, nil
	}
	out := *f
	out.Tradelines = append([]domain.Tradeline(nil), f.Tradelines...)
	return &out, nil
}

func (s *StaticConnector) GetTradelines(_ context.Context, ssnHash string) ([]domain.Tradeline, error) {
	f, ok := s.files[ssnHash]
	if !ok {
		return nil, nil
	}
	return append([]domain.Tradeline(nil), f.Tradelines...), nil
}

// GetCreditFileAge prefers the recorded age and otherwise derives it from the
// opened date.
func (s *StaticConnector) GetCreditFileAge(_ context.Context, ssnHash string) (int, bool, error) {
	f, ok := s.files[ssnHash]
	if !ok {
		return 0, false, nil
	}
	if f.FileAgeMonths > 0 {
		return f.FileAgeMonths, true, nil
	}
	if f.OpenedDate.IsZero() {
		return 0, false, nil
	}
	return monthsBetween(f.OpenedDate, s.now()), true, nil
}

func (s *StaticConnector) GetAuthorizedUserCount(_ context.Context, ssnHash string) (int, error) {
	f, ok := s.files[ssnHash]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, t := range f.Tradelines {
		if t.IsAuthorizedUser {
			n++
		}
	}
	return n, nil
}

func monthsBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
