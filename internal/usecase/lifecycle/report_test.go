package lifecycle

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

func TestReport(t *testing.T) {
	boom := errors.New("boom")
	r := &Report{}
	r.add(StepResult{Step: StepLookup, Kind: domain.KindAgent, Resource: "news_agent", ID: "A1"})
	r.add(StepResult{Step: StepDeleteAlias, Kind: domain.KindAlias, Resource: "news-alias", ID: "L1"})
	r.add(StepResult{Step: StepDeleteAgent, Kind: domain.KindAgent, Resource: "news_agent", ID: "A1", Err: boom})

	assert.Equal(t, 1, r.Count(StepDeleteAlias))
	assert.Equal(t, 0, r.Count(StepDeleteAgent))
	require.Len(t, r.Failures(), 1)

	err := r.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, `delete_agent agent "news_agent": boom`, se.Error())

	var buf bytes.Buffer
	r.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Contains(t, buf.String(), "aliases_deleted=1")
	assert.Contains(t, buf.String(), "failures=1")
}

func TestEmptyReportHasNoError(t *testing.T) {
	assert.NoError(t, (&Report{}).Err())
}
