package querier_test

import (
	"testing"

	"github.com/cfgcenter/cfgcenter/internal/index"
	"github.com/cfgcenter/cfgcenter/internal/model"
	"github.com/cfgcenter/cfgcenter/internal/querier"
	"github.com/stretchr/testify/require"
)

// buildS1S3Index builds a two-rule overlay fixture: R1 foo=="1" pri 10
// -> Res{k=A}; R2 bar=="2" pri 20 -> Res{k=B}; an optional negative
// link at pri 20 for key k.
func buildS1S3Index(t *testing.T, withNeg bool) *index.CFGIndex {
	t.Helper()
	rules := index.RuleIndex{
		"/r1": {Condition: model.Leaf("foo", model.OpEq, model.Str("1")), AbsPath: "/rules/r1"},
		"/r2": {Condition: model.Leaf("bar", model.OpEq, model.Str("2")), AbsPath: "/rules/r2"},
	}
	reses := index.ResIndex{
		"/resA": {Items: []model.ResItem{{ContentType: "text/plain", Key: "k", Value: "A"}}, ResPath: "/reses/resA"},
		"/resB": {Items: []model.ResItem{{ContentType: "text/plain", Key: "k", Value: "B"}}, ResPath: "/reses/resB"},
	}
	links := index.LinkIndex{
		"/r1": {{Pri: 10, IsNeg: false, RulePath: "/r1", ResPath: "/resA", LinkPath: "/links/l1"}},
		"/r2": {{Pri: 20, IsNeg: false, RulePath: "/r2", ResPath: "/resB", LinkPath: "/links/l2"}},
	}
	if withNeg {
		links["/r2"] = append(links["/r2"], &index.LinkEntry{Pri: 20, IsNeg: true, RulePath: "/r2", ResPath: "/resB", LinkPath: "/links/l3"})
	}
	return index.New(rules, reses, links)
}

func TestS1_HigherPriorityWins(t *testing.T) {
	idx := buildS1S3Index(t, false)
	who := model.WhoAmI{"foo": model.Str("1"), "bar": model.Str("2")}

	results := querier.Run(querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.OverlaidView})

	require.Len(t, results, 1)
	require.Equal(t, "B", results[0].Value)
}

func TestS2_OnlyLowerRuleMatches(t *testing.T) {
	idx := buildS1S3Index(t, false)
	who := model.WhoAmI{"foo": model.Str("1")}

	results := querier.Run(querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.OverlaidView})

	require.Len(t, results, 1)
	require.Equal(t, "A", results[0].Value)
}

func TestS3_NegativeLinkSuppressesKeyInOverlaidView(t *testing.T) {
	idx := buildS1S3Index(t, true)
	who := model.WhoAmI{"foo": model.Str("1"), "bar": model.Str("2")}

	results := querier.Run(querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.OverlaidView})
	require.Empty(t, results)
}

func TestS3_AllLinkedResViewEmitsEveryCandidate(t *testing.T) {
	idx := buildS1S3Index(t, true)
	who := model.WhoAmI{"foo": model.Str("1"), "bar": model.Str("2")}

	results := querier.Run(querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.AllLinkedResView})
	require.Len(t, results, 3)
}

func TestAllLinkedResViewOrderIsStableAcrossRepeatedQueries(t *testing.T) {
	idx := buildS1S3Index(t, true)
	who := model.WhoAmI{"foo": model.Str("1"), "bar": model.Str("2")}
	q := querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.AllLinkedResView, NeedExplain: true}

	first := querier.Run(q)
	require.Len(t, first, 3)

	// Link identity order: rule "/r1" sorts before "/r2"; within "/r2",
	// link "/links/l2" sorts before "/links/l3".
	wantLinkPaths := []string{"/links/l1", "/links/l2", "/links/l3"}
	for i, link := range wantLinkPaths {
		require.Equal(t, link, first[i].Reason.LinkPath)
	}

	for i := 0; i < 20; i++ {
		got := querier.Run(q)
		for j, r := range got {
			require.Equal(t, first[j].Reason.LinkPath, r.Reason.LinkPath, "AllLinkedResView order must be reproducible across repeated queries")
		}
	}
}

func TestS4_MissingKeyOmittedFromResults(t *testing.T) {
	idx := buildS1S3Index(t, false)
	who := model.WhoAmI{"foo": model.Str("1"), "bar": model.Str("2")}

	results := querier.Run(querier.Query{Index: idx, WhoAmI: who, Keys: []string{"missing"}, View: querier.OverlaidView})
	require.Empty(t, results)
}

func TestEmptyRuleMatchShortCircuits(t *testing.T) {
	idx := buildS1S3Index(t, false)
	who := model.WhoAmI{}

	results := querier.Run(querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.OverlaidView})
	require.Empty(t, results)
}

func TestExplainPopulatesReason(t *testing.T) {
	idx := buildS1S3Index(t, false)
	who := model.WhoAmI{"bar": model.Str("2")}

	results := querier.Run(querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.OverlaidView, NeedExplain: true})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Reason)
	require.Equal(t, "/r2", results[0].Reason.RulePath)

	noExplain := querier.Run(querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.OverlaidView})
	require.Nil(t, noExplain[0].Reason)
}

func TestDeterministicRepeatedQueries(t *testing.T) {
	idx := buildS1S3Index(t, false)
	who := model.WhoAmI{"foo": model.Str("1"), "bar": model.Str("2")}
	q := querier.Query{Index: idx, WhoAmI: who, Keys: []string{"k"}, View: querier.OverlaidView}

	first := querier.Run(q)
	second := querier.Run(q)
	require.Equal(t, first, second)
}
