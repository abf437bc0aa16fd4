package ruleparser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cfgcenter/cfgcenter/internal/model"
	"github.com/cfgcenter/cfgcenter/internal/ruleparser"
)

func parse(t *testing.T, expr string) model.Condition {
	t.Helper()
	cond, consumed, err := ruleparser.New().Parse(expr)
	require.NoError(t, err)
	require.Equal(t, len(expr), consumed, "parser left unconsumed input")
	return cond
}

func TestParseSimpleComparison(t *testing.T) {
	cond := parse(t, `region == "us-east-1"`)
	ctx := model.WhoAmI{"region": model.Str("us-east-1")}
	require.True(t, cond.Eval(ctx))
	ctx["region"] = model.Str("eu-west-1")
	require.False(t, cond.Eval(ctx))
}

func TestParseAndOrPrecedence(t *testing.T) {
	// && binds tighter than ||
	cond := parse(t, `a == 1 || b == 2 && c == 3`)
	ctx := model.WhoAmI{"a": model.Int(1), "b": model.Int(0), "c": model.Int(0)}
	require.True(t, cond.Eval(ctx), "a==1 alone should satisfy the || branch")

	ctx = model.WhoAmI{"a": model.Int(0), "b": model.Int(2), "c": model.Int(3)}
	require.True(t, cond.Eval(ctx))

	ctx = model.WhoAmI{"a": model.Int(0), "b": model.Int(2), "c": model.Int(0)}
	require.False(t, cond.Eval(ctx), "b==2 without c==3 must not satisfy the && branch")
}

func TestParseNotAndParens(t *testing.T) {
	cond := parse(t, `!(tier == "free")`)
	require.True(t, cond.Eval(model.WhoAmI{"tier": model.Str("pro")}))
	require.False(t, cond.Eval(model.WhoAmI{"tier": model.Str("free")}))
}

func TestParseExist(t *testing.T) {
	cond := parse(t, `exist(beta_flag)`)
	require.True(t, cond.Eval(model.WhoAmI{"beta_flag": model.Bool(true)}))
	require.False(t, cond.Eval(model.WhoAmI{}))
}

func TestParseInList(t *testing.T) {
	cond := parse(t, `region in ["us-east-1", "us-west-2"]`)
	require.True(t, cond.Eval(model.WhoAmI{"region": model.Str("us-west-2")}))
	require.False(t, cond.Eval(model.WhoAmI{"region": model.Str("ap-south-1")}))
}

func TestParseStringEscapes(t *testing.T) {
	cond := parse(t, `name == "line\nbreak \"quoted\""`)
	require.True(t, cond.Eval(model.WhoAmI{"name": model.Str("line\nbreak \"quoted\"")}))
}

func TestParseFloatAndCompare(t *testing.T) {
	cond := parse(t, `score >= 9.5`)
	require.True(t, cond.Eval(model.WhoAmI{"score": model.Float(9.5)}))
	require.False(t, cond.Eval(model.WhoAmI{"score": model.Float(9.4)}))
	// tag mismatch against an int never satisfies a float comparison
	require.False(t, cond.Eval(model.WhoAmI{"score": model.Int(10)}))
}

func TestParseTrailingGarbageRejected(t *testing.T) {
	_, consumed, err := ruleparser.New().Parse(`a == 1 ) `)
	require.NoError(t, err)
	require.Less(t, consumed, len(`a == 1 ) `))
}

func TestParseUnknownOperatorErrors(t *testing.T) {
	_, _, err := ruleparser.New().Parse(`a ~= 1`)
	require.Error(t, err)
}
