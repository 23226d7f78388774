// internal/service/notification/infrastructure/cel_rules_test.go
package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/service/notification/domain"
)

func TestCelRuleEngineSuppression(t *testing.T) {
	engine, err := NewCelRuleEngine(`type == "PROCESSING_UPDATE"`)
	require.NoError(t, err)
	require.NotNil(t, engine)

	suppressed, err := engine.Suppressed(&domain.Notification{Type: domain.TypeProcessingUpdate})
	require.NoError(t, err)
	assert.True(t, suppressed)

	suppressed, err = engine.Suppressed(&domain.Notification{Type: domain.TypeOrderConfirmation})
	require.NoError(t, err)
	assert.False(t, suppressed)
}

func TestCelRuleEngineUsesAllVariables(t *testing.T) {
	engine, err := NewCelRuleEngine(`customerId == "vip-1" && message.contains("cancelled")`)
	require.NoError(t, err)

	suppressed, err := engine.Suppressed(&domain.Notification{
		CustomerID: "vip-1",
		Message:    "Your order order-1 has been cancelled. Reason: test.",
	})
	require.NoError(t, err)
	assert.True(t, suppressed)
}

func TestCelRuleEngineEmptyExpression(t *testing.T) {
	engine, err := NewCelRuleEngine("")
	require.NoError(t, err)
	assert.Nil(t, engine)
}

func TestCelRuleEngineRejectsBadExpressions(t *testing.T) {
	_, err := NewCelRuleEngine(`type ==`)
	assert.Error(t, err)

	// 语法合法但返回值不是 bool
	_, err = NewCelRuleEngine(`message`)
	assert.Error(t, err)
}
