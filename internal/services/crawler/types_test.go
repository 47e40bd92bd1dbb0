package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeContentQualityBuckets(t *testing.T) {
	cases := []struct {
		score int
		want  ContentQuality
	}{
		{95, ContentQualityHigh},
		{81, ContentQualityHigh},
		{80, ContentQualityMedium},
		{51, ContentQualityMedium},
		{50, ContentQualityLow},
		{0, ContentQualityLow},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, computeContentQuality(c.score), "score %d", c.score)
	}
}

func TestNewMetadataClampsScoreAndDerivesFields(t *testing.T) {
	m := NewMetadata("http", 1.5, 150, 200)

	assert.Equal(t, 100, m.QualityScore, "expected quality score clamped to 100")
	assert.Equal(t, ContentQualityHigh, m.ContentQuality)
	assert.Equal(t, 1.0, m.ExtractionConfidence)
	assert.Equal(t, 200, m.TextLength)

	neg := NewMetadata("http", 0, -5, 0)
	assert.Equal(t, 0, neg.QualityScore, "expected negative score clamped to 0")
}

func TestNewFailedResultHonorsInvariants(t *testing.T) {
	r := NewFailedResult("https://example.com", "http", "boom")

	assert.Equal(t, ResultStatusFailed, r.Status)
	assert.Empty(t, r.Title)
	assert.Empty(t, r.Text)
	assert.Nil(t, r.Hierarchy.Depth2)
	assert.Nil(t, r.Hierarchy.Depth3)
	assert.Equal(t, "boom", r.Error)
}

func TestJobToJSONRoundTrips(t *testing.T) {
	j := &Job{JobID: "job_1", Status: JobStateCompleted, Total: 2, Completed: 2, Success: 2}
	s, err := j.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, s, `"job_id":"job_1"`)
}
