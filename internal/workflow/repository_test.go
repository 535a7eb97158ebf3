package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/entityflow/internal/core/errs"
)

func TestValidateCron_EmptyIsValid(t *testing.T) {
	assert.NoError(t, ValidateCron(""))
}

func TestValidateCron_StandardFiveFieldExpression(t *testing.T) {
	assert.NoError(t, ValidateCron("*/5 * * * *"))
}

func TestValidateCron_Descriptor(t *testing.T) {
	assert.NoError(t, ValidateCron("@hourly"))
}

func TestValidateCron_RejectsMalformedExpression(t *testing.T) {
	err := ValidateCron("not a cron expression")
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Validation))
}

func TestValidateCron_RejectsWrongFieldCount(t *testing.T) {
	err := ValidateCron("* * *")
	require.Error(t, err)
}

// CreateWorkflow/UpdateWorkflow/Repository's other methods require a live
// Postgres connection and aren't exercised with fakes here, matching the
// rest of this codebase's storage-layer testing boundary.
