package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajharbinger/perfeval/internal/scoring"
)

func archive() []DataRecord {
	return []DataRecord{
		{ID: "r1", ObjectName: "市财政局", IndicatorName: "云主机CPU平均使用率", Value: scoring.Number(45.2), CollectionTime: "2024-05-20 10:00:00", BatchID: "2024-W21", SourceID: "conn1"},
		{ID: "r5", ObjectName: "市财政局", IndicatorName: "年度预算执行率", Value: scoring.Number(42.5), CollectionTime: "2024-05-01 09:00:00", BatchID: "2024-M05", SourceID: "conn2"},
		{ID: "r7", ObjectName: "市财政局", IndicatorName: "云主机CPU平均使用率", Value: scoring.Number(44.8), CollectionTime: "2024-05-13 10:00:00", BatchID: "2024-W20", SourceID: "conn1"},
		{ID: "r3", ObjectName: "市教育局", IndicatorName: "云主机CPU平均使用率", Value: scoring.Number(12.1), CollectionTime: "2024-05-20 10:00:10", BatchID: "2024-W21", SourceID: "conn1"},
	}
}

func filterIDs(f RecordFilter) []string {
	var ids []string
	for _, r := range archive() {
		if f.Matches(r) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func TestRecordFilter_Matches(t *testing.T) {
	testCases := []struct {
		name     string
		filter   RecordFilter
		expected []string
	}{
		{name: "Empty filter", filter: RecordFilter{}, expected: []string{"r1", "r5", "r7", "r3"}},
		{name: "By source", filter: RecordFilter{SourceID: "conn2"}, expected: []string{"r5"}},
		{name: "Search object", filter: RecordFilter{Search: "教育"}, expected: []string{"r3"}},
		{name: "Search batch", filter: RecordFilter{Search: "w20"}, expected: []string{"r7"}},
		{name: "Date prefix", filter: RecordFilter{DatePrefix: "2024-05-20"}, expected: []string{"r1", "r3"}},
		{name: "Combined", filter: RecordFilter{SourceID: "conn1", Search: "财政", DatePrefix: "2024-05"}, expected: []string{"r1", "r7"}},
		{name: "Batch", filter: RecordFilter{BatchID: "2024-W21"}, expected: []string{"r1", "r3"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, filterIDs(tc.filter))
		})
	}
}

func TestDataRecord_JSONValue(t *testing.T) {
	var r DataRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"r9","value":"优秀","status":"valid"}`), &r))

	label, ok := r.Value.Text()
	assert.True(t, ok)
	assert.Equal(t, "优秀", label)
}

func TestConnectionConfig_ScanValue(t *testing.T) {
	cfg := ConnectionConfig{Username: "readonly_user", DBName: "finance_dw", AuthType: AuthBasic}

	raw, err := cfg.Value()
	require.NoError(t, err)

	var scanned ConnectionConfig
	require.NoError(t, scanned.Scan(raw))
	assert.Equal(t, cfg, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.Equal(t, ConnectionConfig{}, scanned)

	assert.Error(t, scanned.Scan(42))
}

func TestConnectionConfig_Masked(t *testing.T) {
	cfg := ConnectionConfig{Password: "secret", APIKey: "sk-9283abcdef"}
	masked := cfg.Masked()
	assert.Equal(t, "******", masked.Password)
	assert.Equal(t, "sk-92***", masked.APIKey)
	assert.Equal(t, "secret", cfg.Password)
}

func TestDataConnection_Validate(t *testing.T) {
	conn := DataConnection{Name: "财政大数据中心库", Type: ConnectionDatabase, Host: "10.2.5.100:3306", SyncFrequency: SyncDaily}
	assert.NoError(t, conn.Validate())

	conn.Type = "FTP"
	conn.SyncFrequency = "MONTHLY"
	err := conn.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FTP")
	assert.Contains(t, err.Error(), "MONTHLY")
}

func TestIndicator_ValidateAndFilter(t *testing.T) {
	ind := Indicator{ID: "3", Name: "数据重复率", Type: Quantitative, Source: SourceAuto, Status: true, Category: "c2", Unit: "%"}
	assert.NoError(t, ind.Validate())

	bad := Indicator{Type: "Mixed", Source: "Scraped"}
	assert.Error(t, bad.Validate())

	assert.True(t, IndicatorFilter{CategoryIDs: []string{"c1", "c2"}, Search: "重复"}.Matches(ind))
	assert.False(t, IndicatorFilter{CategoryIDs: []string{"c1"}}.Matches(ind))

	ind.Status = false
	assert.False(t, IndicatorFilter{EnabledOnly: true}.Matches(ind))
}
