package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
)

func validResult() schemas.AnalysisResult {
	return schemas.AnalysisResult{
		ID:        "r1",
		InputType: schemas.InputCode,
		Content:   "eval(input)",
		RiskScore: 42,
		Vulnerabilities: []schemas.Vulnerability{
			{ID: "v1", Type: "Code Injection", Severity: schemas.SeverityHigh},
		},
		CreatedAt: "2024-01-01T10:00:00.000Z",
		UpdatedAt: "2024-01-01T10:00:00.000Z",
	}
}

func TestAnalysisRequest_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid request", func(t *testing.T) {
		t.Parallel()
		req := schemas.AnalysisRequest{InputType: schemas.InputSQL, Content: "SELECT 1"}
		assert.NoError(t, req.Validate())
	})

	t.Run("whitespace content is rejected", func(t *testing.T) {
		t.Parallel()
		req := schemas.AnalysisRequest{InputType: schemas.InputSQL, Content: " \n\t "}
		err := req.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrEmptyContent)
	})

	t.Run("unknown input type and empty content are both reported", func(t *testing.T) {
		t.Parallel()
		req := schemas.AnalysisRequest{InputType: "yaml"}
		err := req.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrInvalidInputType)
		assert.ErrorIs(t, err, schemas.ErrEmptyContent)
	})

	t.Run("normalize trims content", func(t *testing.T) {
		t.Parallel()
		req := schemas.AnalysisRequest{InputType: schemas.InputCode, Content: "  x := 1\n"}.Normalize()
		assert.Equal(t, "x := 1", req.Content)
	})
}

func TestAnalysisResult_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(r *schemas.AnalysisResult)
		wantErr []error
	}{
		{"valid", func(r *schemas.AnalysisResult) {}, nil},
		{"missing id", func(r *schemas.AnalysisResult) { r.ID = "" }, []error{schemas.ErrMissingID}},
		{"bad input type", func(r *schemas.AnalysisResult) { r.InputType = "binary" }, []error{schemas.ErrInvalidInputType}},
		{"risk too high", func(r *schemas.AnalysisResult) { r.RiskScore = 101 }, []error{schemas.ErrRiskScoreOutOfRange}},
		{"risk negative", func(r *schemas.AnalysisResult) { r.RiskScore = -1 }, []error{schemas.ErrRiskScoreOutOfRange}},
		{"bad timestamp", func(r *schemas.AnalysisResult) { r.CreatedAt = "last tuesday" }, []error{schemas.ErrMalformedTimestamp}},
		{"bad severity", func(r *schemas.AnalysisResult) { r.Vulnerabilities[0].Severity = "SEVERE" }, []error{schemas.ErrInvalidSeverity}},
		{
			"several violations at once",
			func(r *schemas.AnalysisResult) {
				r.RiskScore = 500
				r.Vulnerabilities[0].Severity = "info"
			},
			[]error{schemas.ErrRiskScoreOutOfRange, schemas.ErrInvalidSeverity},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := validResult()
			tc.mutate(&r)
			err := r.Validate()
			if len(tc.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tc.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}
