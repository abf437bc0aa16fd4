package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cfgcenter/cfgcenter/internal/model"
)

func TestLeafAbsentKeyIsFalse(t *testing.T) {
	cond := model.Leaf("region", model.OpEq, model.Str("us"))
	require.False(t, cond.Eval(model.WhoAmI{}))
}

func TestLeafNotEqualOnTagMismatchIsFalse(t *testing.T) {
	// Per the comparison rules, every binary op (including !=) returns
	// false when lhs and rhs kinds differ -- a mismatch is neither equal
	// nor unequal, it is simply not comparable.
	cond := model.Leaf("region", model.OpNe, model.Int(1))
	require.False(t, cond.Eval(model.WhoAmI{"region": model.Str("us")}))
}

func TestLeafInListMatchesByKindAndValue(t *testing.T) {
	cond := model.Leaf("n", model.OpInList, model.List(model.Int(1), model.Str("1")))
	require.True(t, cond.Eval(model.WhoAmI{"n": model.Int(1)}))
	require.True(t, cond.Eval(model.WhoAmI{"n": model.Str("1")}))
	require.False(t, cond.Eval(model.WhoAmI{"n": model.Float(1)}))
}

func TestAndOrNotComposition(t *testing.T) {
	cond := model.And(
		model.Leaf("a", model.OpEq, model.Int(1)),
		model.Or(
			model.Leaf("b", model.OpEq, model.Int(2)),
			model.Not(model.LeafExist("c")),
		),
	)
	require.True(t, cond.Eval(model.WhoAmI{"a": model.Int(1), "b": model.Int(2)}))
	require.True(t, cond.Eval(model.WhoAmI{"a": model.Int(1)}))
	require.False(t, cond.Eval(model.WhoAmI{"a": model.Int(1), "c": model.Bool(true)}))
}

func TestExistLeaf(t *testing.T) {
	cond := model.LeafExist("flag")
	require.True(t, cond.Eval(model.WhoAmI{"flag": model.Null}))
	require.False(t, cond.Eval(model.WhoAmI{}))
}
