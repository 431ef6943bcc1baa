package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

var testSchema = []core.FieldSchema{
	{Name: "time", Type: core.FieldTypeTime},
	{Name: "value", Type: core.FieldTypeNumber},
}

func ts(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func values(t *testing.T, df core.DataFrame, field int) []any {
	t.Helper()
	require.Greater(t, len(df.Fields), field)
	return df.Fields[field].Values
}

func TestNewDefaultsCapacity(t *testing.T) {
	assert.Equal(t, core.DefaultCapacity, New("A", 0).Capacity())
	assert.Equal(t, core.DefaultCapacity, New("A", -5).Capacity())
	assert.Equal(t, 3, New("A", 3).Capacity())
}

func TestRegisterSchema(t *testing.T) {
	tests := []struct {
		name    string
		first   []core.FieldSchema
		second  []core.FieldSchema
		wantErr bool
	}{
		{
			name:   "identical re-registration is a no-op",
			first:  testSchema,
			second: testSchema,
		},
		{
			name:  "renamed field is rejected",
			first: testSchema,
			second: []core.FieldSchema{
				{Name: "time", Type: core.FieldTypeTime},
				{Name: "v", Type: core.FieldTypeNumber},
			},
			wantErr: true,
		},
		{
			name:  "retyped field is rejected",
			first: testSchema,
			second: []core.FieldSchema{
				{Name: "time", Type: core.FieldTypeTime},
				{Name: "value", Type: core.FieldTypeString},
			},
			wantErr: true,
		},
		{
			name:    "extra field is rejected",
			first:   testSchema,
			second:  append(append([]core.FieldSchema{}, testSchema...), core.FieldSchema{Name: "host", Type: core.FieldTypeString}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New("A", 5)
			require.NoError(t, f.RegisterSchema(tt.first))
			require.NoError(t, f.AppendRow([]any{ts(1), 1.0}))

			err := f.RegisterSchema(tt.second)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsSchemaViolation(err))
			} else {
				require.NoError(t, err)
			}

			// Existing schema and rows are untouched either way.
			assert.Equal(t, testSchema, f.Schema())
			assert.Equal(t, 1, f.Len())
		})
	}
}

func TestRegisterSchemaRequiresTimeField(t *testing.T) {
	f := New("A", 5)
	err := f.RegisterSchema([]core.FieldSchema{{Name: "value", Type: core.FieldTypeNumber}})
	require.Error(t, err)
	assert.True(t, core.IsSchemaViolation(err))
	assert.False(t, f.HasSchema())

	err = f.RegisterSchema(nil)
	assert.True(t, core.IsSchemaViolation(err))
}

func TestTimeIndexIsFirstTimeField(t *testing.T) {
	f := New("A", 5)
	require.NoError(t, f.RegisterSchema([]core.FieldSchema{
		{Name: "host", Type: core.FieldTypeString},
		{Name: "created", Type: core.FieldTypeTime},
		{Name: "updated", Type: core.FieldTypeTime},
	}))
	assert.Equal(t, 1, f.TimeIndex())
}

func TestAppendRowValidation(t *testing.T) {
	f := New("A", 5)
	err := f.AppendRow([]any{ts(1), 1.0})
	assert.True(t, core.IsValidationError(err), "append before registration")

	require.NoError(t, f.RegisterSchema(testSchema))
	err = f.AppendRow([]any{ts(1)})
	assert.True(t, core.IsValidationError(err), "short row")
	err = f.AppendRow([]any{ts(1), 1.0, "x"})
	assert.True(t, core.IsValidationError(err), "long row")
	assert.Equal(t, 0, f.Len())
}

func TestCapacityBoundEvictsOldest(t *testing.T) {
	f := New("A", 3)
	require.NoError(t, f.RegisterSchema(testSchema))

	for i := range 5 {
		require.NoError(t, f.AppendRow([]any{ts(int64(i)), float64(i)}))
		assert.LessOrEqual(t, f.Len(), 3)
	}

	snap := f.Snapshot()
	assert.Equal(t, 3, snap.Rows())
	assert.Equal(t, []any{2.0, 3.0, 4.0}, values(t, snap, 1))
	assert.Equal(t, []any{ts(2), ts(3), ts(4)}, values(t, snap, 0))
}

func TestSnapshotIsACopy(t *testing.T) {
	schema := []core.FieldSchema{
		{Name: "time", Type: core.FieldTypeTime},
		{Name: "value", Type: core.FieldTypeNumber, Labels: map[string]string{"host": "a"}, Config: &core.FieldConfig{Unit: "ms"}},
	}
	f := New("A", 2)
	require.NoError(t, f.RegisterSchema(schema))
	require.NoError(t, f.AppendRow([]any{ts(1), 1.0}))

	snap := f.Snapshot()
	require.NoError(t, f.AppendRow([]any{ts(2), 2.0}))
	require.NoError(t, f.AppendRow([]any{ts(3), 3.0}))

	assert.Equal(t, []any{1.0}, values(t, snap, 1))
	assert.Equal(t, "A", snap.RefID)
	assert.Equal(t, []any{2.0, 3.0}, values(t, f.Snapshot(), 1))

	snap.Fields[1].Labels["host"] = "mutated"
	snap.Fields[1].Config.Unit = "s"
	assert.Equal(t, "a", f.Schema()[1].Labels["host"])
	assert.Equal(t, "ms", f.Schema()[1].Config.Unit)

	got := f.Schema()
	got[1].Labels["host"] = "mutated"
	assert.Equal(t, "a", f.Snapshot().Fields[1].Labels["host"])

	schema[1].Labels["host"] = "mutated"
	assert.Equal(t, "a", f.Schema()[1].Labels["host"], "registration keeps its own labels")
}

func TestLargeCapacityGrowsWithRows(t *testing.T) {
	f := New("A", 1<<30)
	require.NoError(t, f.RegisterSchema(testSchema))
	for i := range 3 {
		require.NoError(t, f.AppendRow([]any{ts(int64(i)), float64(i)}))
	}
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []any{0.0, 1.0, 2.0}, values(t, f.Snapshot(), 1))
	assert.LessOrEqual(t, cap(f.columns[0]), 64)
}

func TestWrapAfterGrowth(t *testing.T) {
	f := New("A", 100)
	require.NoError(t, f.RegisterSchema(testSchema))
	for i := range 250 {
		require.NoError(t, f.AppendRow([]any{ts(int64(i)), float64(i)}))
	}
	got := values(t, f.Snapshot(), 1)
	require.Len(t, got, 100)
	assert.Equal(t, 150.0, got[0])
	assert.Equal(t, 249.0, got[99])
	assert.Len(t, f.columns[1], 100)
}

func TestAppendResponse(t *testing.T) {
	resp := &core.Response{Fields: []core.Field{
		{FieldSchema: testSchema[0], Values: []any{ts(1), ts(2), ts(3), ts(4)}},
		{FieldSchema: testSchema[1], Values: []any{1.0, 2.0, 3.0, 4.0}},
	}}

	t.Run("bulk seed keeps the newest rows", func(t *testing.T) {
		f := New("A", 3)
		require.NoError(t, f.RegisterSchema(resp.Schema()))
		require.NoError(t, f.AppendResponse(resp, 0))
		assert.Equal(t, []any{2.0, 3.0, 4.0}, values(t, f.Snapshot(), 1))
	})

	t.Run("last row only", func(t *testing.T) {
		f := New("A", 3)
		require.NoError(t, f.RegisterSchema(resp.Schema()))
		require.NoError(t, f.AppendResponse(resp, resp.Rows()-1))
		assert.Equal(t, []any{4.0}, values(t, f.Snapshot(), 1))
	})
}

func TestSnapshotEmptyFrame(t *testing.T) {
	f := New("A", 2)
	require.NoError(t, f.RegisterSchema(testSchema))
	snap := f.Snapshot()
	require.Len(t, snap.Fields, 2)
	assert.Empty(t, snap.Fields[0].Values)
}
