package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignKnownVector(t *testing.T) {
	// echo -n "order_1|pay_123" | openssl dgst -sha256 -hmac secret
	sig := Sign("secret", "order_1", "pay_123")
	assert.Equal(t, "3c20f01d676ad8ceeeb58ada380a6c095e4d3faee035f217f1b28803d492261b", sig)
	assert.True(t, VerifySignature("secret", "order_1", "pay_123", sig))
}

func TestTamperedInputsFailVerification(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_123")
	assert.False(t, VerifySignature("secret", "order_1", "pay_124", sig))
	assert.False(t, VerifySignature("secret", "order_2", "pay_123", sig))
	assert.False(t, VerifySignature("other", "order_1", "pay_123", sig))
	assert.False(t, VerifySignature("secret", "order_1", "pay_123", sig[:63]))
	assert.False(t, VerifySignature("secret", "order_1|pay", "123", Sign("secret", "order_1|pay", "12")))
}
