package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRiskLevelOrdering(t *testing.T) {
	levels := []RiskLevel{RiskMinimal, RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i := 1; i < len(levels); i++ {
		if levels[i-1] >= levels[i] {
			t.Errorf("expected %s < %s", levels[i-1], levels[i])
		}
	}
}

func TestRiskLevelJSON(t *testing.T) {
	t.Run("Marshal", func(t *testing.T) {
		data, err := json.Marshal(struct {
			Level RiskLevel `json:"level"`
		}{RiskHigh})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(data) != `{"level":"high"}` {
			t.Errorf("unexpected json: %s", data)
		}
	})

	t.Run("Unmarshal", func(t *testing.T) {
		var out struct {
			Level RiskLevel `json:"level"`
		}
		if err := json.Unmarshal([]byte(`{"level":"CRITICAL"}`), &out); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if out.Level != RiskCritical {
			t.Errorf("expected critical, got %s", out.Level)
		}
	})

	t.Run("UnknownName", func(t *testing.T) {
		_, err := ParseRiskLevel("severe")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0.42, 0.42},
		{1.7, 1},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEmptyGraphFeatures(t *testing.T) {
	f := EmptyGraphFeatures()
	v := f.Vector()
	if len(v) != FeatureVectorSize {
		t.Fatalf("expected %d features, got %d", FeatureVectorSize, len(v))
	}
	for i, x := range v {
		if i == 10 {
			if x != 1 {
				t.Errorf("cluster size should be 1, got %v", x)
			}
			continue
		}
		if x != 0 {
			t.Errorf("feature %d should be 0, got %v", i, x)
		}
	}
}
