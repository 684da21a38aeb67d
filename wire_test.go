package livekv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryMarshalGoldenFrames(t *testing.T) {
	cases := []struct {
		name string
		q    Query
		want string
	}{
		{
			name: "insert",
			q: Query{
				QueryType: InsertQuery("user-1", json.RawMessage(`{"name":"thor"}`)),
				QueryID:   "<uuid>",
			},
			want: `{"query_type":{"INSERT":["user-1",{"name":"thor"}]},"query_id":"<uuid>"}`,
		},
		{
			name: "get-prefix",
			q: Query{
				QueryType: GetQuery(PrefixSelector("")),
				QueryID:   "<uuid>",
			},
			want: `{"query_type":{"GET":{"Prefix":""}},"query_id":"<uuid>"}`,
		},
		{
			name: "watch-procedure",
			q: Query{
				QueryType: WatchQuery(ProcedureSelector("get_random", nil)),
				QueryID:   "<uuid>",
			},
			want: `{"query_type":{"WATCH":{"Procedure":["get_random",null]}},"query_id":"<uuid>"}`,
		},
		{
			name: "unwatch",
			q: Query{
				QueryType: UnwatchQuery(),
				QueryID:   "<uuid>",
			},
			want: `{"query_type":"UNWATCH","query_id":"<uuid>"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.q)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))

			var decoded Query
			require.NoError(t, json.Unmarshal(got, &decoded))
			assert.Equal(t, tc.q.QueryID, decoded.QueryID)
			assert.Equal(t, tc.q.QueryType.Kind, decoded.QueryType.Kind)
		})
	}
}

func TestResponseMarshal(t *testing.T) {
	resp := Response{
		QueryID: "<uuid>",
		QueryRes: []KVPair{
			{Key: "user-1", Value: json.RawMessage(`{"name":"thor"}`)},
		},
	}
	got, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query_id":"<uuid>","query_res":[{"key":"user-1","value":{"name":"thor"}}]}`, string(got))
}

func TestQueryTypeUnmarshalRoundTrip(t *testing.T) {
	raw := []byte(`{"GET":{"Procedure":["get_all",{"n":3}]}}`)
	var qt QueryType
	require.NoError(t, json.Unmarshal(raw, &qt))
	assert.Equal(t, QueryGet, qt.Kind)
	assert.Equal(t, SelectorProcedure, qt.Selector.Kind)
	assert.Equal(t, "get_all", qt.Selector.ProcName)
	assert.JSONEq(t, `{"n":3}`, string(qt.Selector.ProcArg))
}

func TestQueryTypeUnmarshalUnknown(t *testing.T) {
	var qt QueryType
	err := json.Unmarshal([]byte(`{"DELETE":"x"}`), &qt)
	assert.ErrorIs(t, err, ErrUnknownQueryType)
}

func TestSelectorUnmarshalUnknown(t *testing.T) {
	var sel Selector
	err := json.Unmarshal([]byte(`{"Suffix":"x"}`), &sel)
	assert.ErrorIs(t, err, ErrUnknownSelector)
}
