package categories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	catA = NewTerm("urn:s", "a")
	catB = NewTerm("urn:s", "b")
	catC = NewTerm("urn:s", "c")
	catD = NewTerm("urn:s", "d")
	catE = NewTerm("urn:s", "e")
)

func TestClassification(t *testing.T) {
	ab := NewAnd(catA, catB)
	cd := NewAnd(catC, catD)

	tests := []struct {
		name string
		expr Expression
		want ExprType
	}{
		{"single term", catA, TypeSimple},
		{"two-term and", ab, TypeAnd},
		{"two-term or", NewOr(catA, catB), TypeOr},
		{"and of ands", NewAnd(ab, cd), TypeAnd},
		{"or of ands is mixed", NewOr(ab, cd), TypeMixed},
		{"and of and and single term", NewAnd(ab, catE), TypeAnd},
		{"or of and and single term is mixed", NewOr(ab, catE), TypeMixed},
		{"or of ors", NewOr(NewOr(catA, catB), NewOr(catC, catD)), TypeOr},
		{"and of or is mixed", NewAnd(NewOr(catA, catB), catC), TypeMixed},
		{"all-same-operator chain degenerates", NewAnd(catA, NewAnd(catB, NewAnd(catC, catD))), TypeAnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.Type())
		})
	}
}

func TestMatches(t *testing.T) {
	set := map[Category]bool{
		{Scheme: "urn:s", Term: "a"}: true,
		{Scheme: "urn:s", Term: "b"}: true,
	}

	assert.True(t, catA.Matches(set))
	assert.False(t, catC.Matches(set))
	assert.True(t, NewAnd(catA, catB).Matches(set))
	assert.False(t, NewAnd(catA, catC).Matches(set))
	assert.True(t, NewOr(catC, catB).Matches(set))
	assert.False(t, NewOr(catC, catD).Matches(set))
	assert.True(t, NewOr(NewAnd(catA, catB), catD).Matches(set))
}

func TestDNF(t *testing.T) {
	t.Run("pure and yields one clause", func(t *testing.T) {
		clauses := DNF(NewAnd(catA, catB))
		require.Len(t, clauses, 1)
		assert.ElementsMatch(t, []Category{catA.Category, catB.Category}, clauses[0])
	})

	t.Run("pure or yields one clause per term", func(t *testing.T) {
		clauses := DNF(NewOr(catA, catB, catC))
		require.Len(t, clauses, 3)
		for i, want := range []Category{catA.Category, catB.Category, catC.Category} {
			assert.Equal(t, []Category{want}, clauses[i])
		}
	})

	t.Run("mixed distributes", func(t *testing.T) {
		// a AND (b OR c) => (a AND b) OR (a AND c)
		clauses := DNF(NewAnd(catA, NewOr(catB, catC)))
		require.Len(t, clauses, 2)
		assert.ElementsMatch(t, []Category{catA.Category, catB.Category}, clauses[0])
		assert.ElementsMatch(t, []Category{catA.Category, catC.Category}, clauses[1])
	})

	t.Run("duplicate terms collapse within a clause", func(t *testing.T) {
		clauses := DNF(NewAnd(catA, catA))
		require.Len(t, clauses, 1)
		assert.Equal(t, []Category{catA.Category}, clauses[0])
	})
}

func TestTermsCollection(t *testing.T) {
	expr := NewOr(NewAnd(catA, catB), catC)
	assert.Equal(t, []Category{catA.Category, catB.Category, catC.Category}, expr.Terms())
}
