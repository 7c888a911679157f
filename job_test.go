package quartz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobBuilder(t *testing.T) {
	job, err := NewJob("report").
		WithIdentity("nightly", "reports").
		WithDescription("sends the nightly report").
		StoreDurably().
		RequestRecovery().
		DisallowConcurrentExecution().
		PersistJobDataAfterExecution().
		UsingJobData("recipient", "ops@example.com").
		Build()
	require.NoError(t, err)

	assert.Equal(t, NewJobKey("nightly", "reports"), job.Key())
	assert.Equal(t, "report", job.JobType())
	assert.Equal(t, "sends the nightly report", job.Description())
	assert.True(t, job.IsDurable())
	assert.True(t, job.RequestsRecovery())
	assert.True(t, job.IsConcurrentExecutionDisallowed())
	assert.True(t, job.IsPersistJobDataAfterExecution())
	assert.Equal(t, "ops@example.com", job.JobDataMap().GetString("recipient"))
	assert.False(t, job.JobDataMap().Dirty(), "built jobs start clean")
}

func TestJobBuilderGeneratesKey(t *testing.T) {
	a := NewJob("noop").MustBuild()
	b := NewJob("noop").MustBuild()
	assert.Equal(t, DefaultGroup, a.Key().Group)
	assert.NotEmpty(t, a.Key().Name)
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestJobValidate(t *testing.T) {
	_, err := NewJob("").WithIdentity("j", "g").Build()
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = NewJob("noop").WithKey(JobKey{Group: "g"}).Build()
	assert.ErrorIs(t, err, ErrInvalidJob)

	assert.Panics(t, func() { NewJob("").MustBuild() })
}

func TestJobDetailCopies(t *testing.T) {
	job := NewJob("noop").WithIdentity("j", "g").UsingJobData("n", 1).MustBuild()

	data := job.JobDataMap()
	data.Put("n", 2)
	assert.Equal(t, 1, mustInt(t, job.JobDataMap(), "n"), "JobDataMap returns a copy")

	c := job.WithJobData(data)
	assert.Equal(t, 2, mustInt(t, c.JobDataMap(), "n"))
	assert.Equal(t, 1, mustInt(t, job.JobDataMap(), "n"))
	assert.Equal(t, job.Key(), c.Key())
}

func mustInt(t *testing.T, d JobDataMap, key string) int {
	t.Helper()
	n, ok := d.GetInt(key)
	require.True(t, ok, "key %q", key)
	return n
}

func TestJobDataMap(t *testing.T) {
	var d JobDataMap
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.Dirty())

	d.Put("s", "text")
	d.Put("i", 42)
	d.Put("n", "17")
	d.Put("b", "true")
	d.Put("f", 1.5)
	assert.True(t, d.Dirty())
	assert.Equal(t, []string{"b", "f", "i", "n", "s"}, d.Keys())

	assert.Equal(t, "42", d.GetString("i"))
	assert.Equal(t, "1.5", d.GetString("f"))
	assert.Equal(t, "", d.GetString("missing"))
	assert.Equal(t, 17, mustInt(t, d, "n"))
	assert.True(t, d.GetBool("b"))
	assert.False(t, d.GetBool("s"))
	_, ok := d.GetInt("s")
	assert.False(t, ok)

	d.ClearDirtyFlag()
	d.Remove("missing")
	assert.False(t, d.Dirty(), "removing an absent key is not a change")
	d.Remove("s")
	assert.True(t, d.Dirty())
	_, ok = d.Get("s")
	assert.False(t, ok)
}

func TestJobDataMapMerge(t *testing.T) {
	job := NewJobDataMap(map[string]any{"a": 1, "b": 1})
	trigger := NewJobDataMap(map[string]any{"b": 2, "c": 2})

	merged := job.Merge(trigger)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 2}, merged.ToMap())
	assert.Equal(t, map[string]any{"a": 1, "b": 1}, job.ToMap(), "merge does not modify the receiver")

	var empty JobDataMap
	assert.Equal(t, map[string]any{"b": 2, "c": 2}, empty.Merge(trigger).ToMap())
}
