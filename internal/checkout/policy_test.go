package checkout

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	require.Equal(t, Policy{RequiredMOQ: 10}, DefaultPolicy(10))
	require.Equal(t, Policy{RequiredMOQ: StandardMOQ}, DefaultPolicy(0))
}

func TestParseRowRequiredMOQFallbacks(t *testing.T) {
	influencer := func(moq any) Row {
		row := Row{"is_influencer": true, "influencer_moq_enabled": true, "paid_orders_last_30d": 4}
		if moq != nil {
			row["required_moq"] = moq
		}
		return row
	}
	cases := []struct {
		name string
		row  Row
		want int
	}{
		{name: "upstream relaxation", row: influencer(float64(3)), want: 3},
		{name: "numeric string", row: influencer("2"), want: 2},
		{name: "json number", row: influencer(json.Number("5")), want: 5},
		{name: "fraction truncates", row: influencer(2.7), want: 2},
		{name: "garbage string", row: influencer("abc"), want: 10},
		{name: "zero", row: influencer(float64(0)), want: 10},
		{name: "negative", row: influencer(float64(-4)), want: 10},
		{name: "missing", row: influencer(nil), want: 10},
		{name: "nan", row: influencer(math.NaN()), want: 10},
		{name: "bool", row: influencer(true), want: 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseRow(tc.row, 10)
			require.Equal(t, tc.want, got.RequiredMOQ)
			require.True(t, got.IsInfluencer)
			require.True(t, got.InfluencerMOQEnabled)
			require.Equal(t, 4, got.PaidOrdersLast30d)
		})
	}
}

func TestParseRowStandardUnlessRelaxed(t *testing.T) {
	notInfluencer := ParseRow(Row{"is_influencer": false, "influencer_moq_enabled": true, "required_moq": 1}, 10)
	require.Equal(t, 10, notInfluencer.RequiredMOQ)

	disabled := ParseRow(Row{"is_influencer": true, "influencer_moq_enabled": false, "required_moq": 1}, 10)
	require.Equal(t, 10, disabled.RequiredMOQ)
	require.True(t, disabled.IsInfluencer)
}

func TestParseRowCoercesFlagsAndCounts(t *testing.T) {
	got := ParseRow(Row{
		"is_influencer":          "t",
		"influencer_moq_enabled": float64(1),
		"paid_orders_last_30d":   "-3",
		"required_moq":           "4",
	}, 10)
	require.Equal(t, Policy{RequiredMOQ: 4, IsInfluencer: true, InfluencerMOQEnabled: true}, got)

	got = ParseRow(Row{"is_influencer": "maybe", "paid_orders_last_30d": "lots"}, 10)
	require.Equal(t, DefaultPolicy(10), got)

	require.Equal(t, DefaultPolicy(10), ParseRow(nil, 10))
}

func TestDecodeRow(t *testing.T) {
	row, err := decodeRow([]byte(`{"required_moq": 3, "is_influencer": true, "influencer_moq_enabled": true, "paid_orders_last_30d": "7"}`))
	require.NoError(t, err)
	require.Equal(t, Policy{RequiredMOQ: 3, IsInfluencer: true, InfluencerMOQEnabled: true, PaidOrdersLast30d: 7}, ParseRow(row, 10))

	row, err = decodeRow([]byte("null"))
	require.NoError(t, err)
	require.Nil(t, row)

	row, err = decodeRow([]byte(`{"required_moq": null, "is_influencer": true, "influencer_moq_enabled": true}`))
	require.NoError(t, err)
	require.Equal(t, Policy{RequiredMOQ: 25, IsInfluencer: true, InfluencerMOQEnabled: true}, ParseRow(row, 25))

	_, err = decodeRow([]byte(`[1,2]`))
	require.Error(t, err)
}
