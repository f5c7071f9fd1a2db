package dto

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	Register(v)
	return v
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// --- Custom tag tests ---

func TestPaymentRequest_Validation(t *testing.T) {
	v := newValidator()
	cb := "https://shop.example.com/hook"
	pin := "1234"

	valid := PaymentRequest{
		ExternalOrderID: "ORDER_2024-001",
		UserEmail:       "alice@example.com",
		Amount:          amount("30.00"),
		CallbackURL:     &cb,
		Metadata:        json.RawMessage(`{"cart":"42"}`),
		UserPin:         &pin,
	}
	require.NoError(t, v.Struct(valid))

	tests := []struct {
		name   string
		mutate func(*PaymentRequest)
		field  string
		tag    string
	}{
		{"order id with space", func(r *PaymentRequest) { r.ExternalOrderID = "ORDER 1" }, "external_order_id", "order_id"},
		{"order id too long", func(r *PaymentRequest) { r.ExternalOrderID = strings.Repeat("a", 101) }, "external_order_id", "order_id"},
		{"bad email", func(r *PaymentRequest) { r.UserEmail = "alice" }, "user_email", "email"},
		{"three decimals", func(r *PaymentRequest) { r.Amount = amount("1.005") }, "amount", "money"},
		{"ftp callback", func(r *PaymentRequest) { u := "ftp://x.example.com"; r.CallbackURL = &u }, "callback_url", "safe_url"},
		{"array metadata", func(r *PaymentRequest) { r.Metadata = json.RawMessage(`[1,2]`) }, "metadata", "json_object"},
		{"five digit pin", func(r *PaymentRequest) { p := "12345"; r.UserPin = &p }, "user_pin", "pin4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := v.Struct(req)
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field())
			assert.Equal(t, tt.tag, verrs[0].Tag())
		})
	}
}

func TestMoney_AcceptsTrailingZeros(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Struct(TransferRequest{RecipientEmail: "bob@example.com", Amount: amount("10.500")}))
	assert.NoError(t, v.Struct(TransferRequest{RecipientEmail: "bob@example.com", Amount: amount("7")}))
}

func TestCardRequest_FormatLeftToService(t *testing.T) {
	v := newValidator()
	// card number and pin format are checked by the card service
	assert.NoError(t, v.Struct(CardRequest{CardNumber: "4111-1111-1111-1111", Pin: "12"}))
	assert.Error(t, v.Struct(CardRequest{CardNumber: "4111111111111111", Pin: "1234", IPAddress: "not-an-ip"}))
}

func TestCardLimitsRequest_Validation(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Struct(CardLimitsRequest{CardID: "550e8400-e29b-41d4-a716-446655440000"}))
	assert.Error(t, v.Struct(CardLimitsRequest{CardID: "card-1"}))
}

// --- Missing tests ---

func TestMissing(t *testing.T) {
	assert.Equal(t, []string{"amount", "external_order_id", "user_email"}, (&PaymentRequest{}).Missing())
	assert.Equal(t, []string{"amount"}, (&TransferRequest{RecipientEmail: "bob@example.com"}).Missing())
	assert.Empty(t, (&CardRequest{CardNumber: "4111111111111111", Pin: "1234"}).Missing())
	assert.Equal(t, []string{"card_id"}, (&CardLimitsRequest{}).Missing())
}

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsAndStripsControlChars(t *testing.T) {
	desc := "  lunch\x00 split\n  "
	req := TransferRequest{
		RecipientEmail: "  bob@example.com\t",
		Description:    &desc,
	}
	SanitizeStruct(&req)

	assert.Equal(t, "bob@example.com", req.RecipientEmail)
	assert.Equal(t, "lunch split", *req.Description)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := TransferRequest{RecipientEmail: "carol@example.com"}
	SanitizeStruct(&req)
	assert.Nil(t, req.Description)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	req := TransferRequest{RecipientEmail: "  dave@example.com  "}
	SanitizeStruct(req) // passed by value, must not panic
	assert.Equal(t, "  dave@example.com  ", req.RecipientEmail)
}

func TestDescription(t *testing.T) {
	assert.Nil(t, Description(nil))

	blank := " \t "
	assert.Nil(t, Description(&blank))

	long := strings.Repeat("é", MaxDescriptionLength+20)
	got := Description(&long)
	require.NotNil(t, got)
	assert.Equal(t, MaxDescriptionLength, len([]rune(*got)))
}
