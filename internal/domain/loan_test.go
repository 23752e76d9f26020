package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLoanRequest_UnmarshalJSON(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name        string
		processedAt string
		expected    time.Time
		expectError bool
	}{
		{
			name:        "calendar date",
			processedAt: `"2024-01-15"`,
			expected:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "RFC3339 timestamp",
			processedAt: `"2024-01-15T18:45:00Z"`,
			expected:    time.Date(2024, 1, 15, 18, 45, 0, 0, time.UTC),
		},
		{
			name:        "missing",
			processedAt: `""`,
			expected:    time.Time{},
		},
		{
			name:        "day first",
			processedAt: `"15/01/2024"`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"user_id":"` + userID.String() + `","amount":1000,"currency_code":"USD","terms":3,"processed_at":` + tt.processedAt + `}`

			var request CreateLoanRequest
			err := json.Unmarshal([]byte(body), &request)

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, request.UserID)
			assert.Equal(t, int64(1000), request.Amount)
			assert.Equal(t, "USD", request.CurrencyCode)
			assert.Equal(t, 3, request.Terms)
			assert.True(t, tt.expected.Equal(request.ProcessedAt), "got %s", request.ProcessedAt)
		})
	}
}
