package intent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/intent"
)

func TestFallbackClassify_PaymentSentence(t *testing.T) {
	res := intent.FallbackClassify("I want to pay 500 for student 2023001 for 2025-SUMMER")

	assert.Equal(t, intent.KindPay, res.Intent)
	assert.Equal(t, "2023001", res.SubjectID)
	assert.Equal(t, "2025-SUMMER", res.Term)
	require.True(t, res.HasAmount())
	assert.Equal(t, "500", res.Amount.Decimal.String())
}

func TestFallbackClassify_Subject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"explicit phrase wins", "pay 123456 to student no 4321", "4321"},
		{"long run over short run", "balance 1234 or 20230015", "20230015"},
		{"term year is not a subject", "balance for 2025-FALL", ""},
		{"bare year is skipped", "balance in 2024 for 5555", "5555"},
		{"year only", "what happened in 2024", ""},
		{"student id phrase", "Student ID: 2023002 balance", "2023002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, intent.FallbackClassify(tt.text).SubjectID)
		})
	}
}

func TestFallbackClassify_Amount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"pay phrase", "pay 250.50 for 2023001", "250.5"},
		{"amount of", "amount of 75 please, student 2023001", "75"},
		{"dollar prefix", "send $300 for 2023001", "300"},
		{"lira suffix", "2023001 için 1500 TL ödeme", "1500"},
		{"none", "pay for student 2023001", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := intent.FallbackClassify(tt.text)
			if tt.want == "" {
				assert.False(t, res.HasAmount())
				return
			}
			require.True(t, res.HasAmount())
			assert.Equal(t, tt.want, res.Amount.Decimal.String())
		})
	}
}

func TestFallbackClassify_Intents(t *testing.T) {
	assert.Equal(t, intent.KindListUnpaid, intent.FallbackClassify("list outstanding for 2024-FALL").Intent)
	assert.Equal(t, intent.KindQueryBalance, intent.FallbackClassify("how much does 2023001 owe").Intent)
	assert.Equal(t, intent.KindPay, intent.FallbackClassify("öde 2023001").Intent)
	assert.Equal(t, intent.KindUnknown, intent.FallbackClassify("   ").Intent)
}
