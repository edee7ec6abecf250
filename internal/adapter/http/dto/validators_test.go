package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeStruct_TrimsAndEscapes(t *testing.T) {
	url := "  https://shop.example/hook  "
	req := RegisterRequest{
		Username:     "  alice  ",
		Password:     "password123",
		MerchantName: " <b>Alice</b> ",
		WebhookURL:   &url,
	}
	SanitizeStruct(&req)

	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, "&lt;b&gt;Alice&lt;/b&gt;", req.MerchantName)
	assert.Equal(t, "https://shop.example/hook", *req.WebhookURL)
}

func TestSanitizeStruct_IgnoresNilAndNonPointers(t *testing.T) {
	req := RejectWithdrawalRequest{Reason: " fraud "}
	SanitizeStruct(req)
	assert.Equal(t, " fraud ", req.Reason)

	reg := RegisterRequest{Username: "bob"}
	SanitizeStruct(&reg)
	assert.Nil(t, reg.WebhookURL)
}

func TestBinding_Currency(t *testing.T) {
	ok := WithdrawalRequest{Currency: "usdt_eth", DestinationAddress: "0xabc"}
	assert.NoError(t, binding.Validator.ValidateStruct(&ok))

	bad := WithdrawalRequest{Currency: "DOGE", DestinationAddress: "0xabc"}
	assert.Error(t, binding.Validator.ValidateStruct(&bad))
}

func TestBinding_SafeURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://shop.example/hooks", true},
		{"http://localhost:8080/cb", true},
		{"ftp://shop.example/hooks", false},
		{"javascript:alert(1)", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		u := tt.url
		req := MerchantSettingsRequest{WebhookURL: &u}
		err := binding.Validator.ValidateStruct(&req)
		if tt.valid {
			assert.NoError(t, err, tt.url)
		} else {
			assert.Error(t, err, tt.url)
		}
	}
}

func TestBinding_DestinationKeysMustBeCurrencies(t *testing.T) {
	req := MerchantSettingsRequest{Destinations: map[string]string{"ETH": "0xabc"}}
	assert.NoError(t, binding.Validator.ValidateStruct(&req))

	req = MerchantSettingsRequest{Destinations: map[string]string{"XRP": "r123"}}
	assert.Error(t, binding.Validator.ValidateStruct(&req))
}

func TestBinding_ExpirationBounds(t *testing.T) {
	four, sixty := 4, 60
	req := CreatePaymentRequest{Currency: "ETH", ExpirationMinutes: &four}
	assert.Error(t, binding.Validator.ValidateStruct(&req))

	req.ExpirationMinutes = &sixty
	assert.NoError(t, binding.Validator.ValidateStruct(&req))
}
