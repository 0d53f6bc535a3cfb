package querystate

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func seeded(t *testing.T, s State) *Store {
	t.Helper()
	return NewStore(s.Values())
}

func TestMutationsResetPage(t *testing.T) {
	base := State{Page: 4, PerPage: 50, Filters: []Filter{}}

	st := seeded(t, base)
	st.SetPerPage(100)
	assert.Equal(t, 1, st.State().Page)
	assert.Equal(t, 100, st.State().PerPage)

	st = seeded(t, base)
	st.SetSort(Sort{Ref: "name", Dir: Desc})
	assert.Equal(t, 1, st.State().Page)

	st = seeded(t, base)
	st.SetFilters([]Filter{{Ref: "a", Op: "eq", Val: "b"}})
	assert.Equal(t, 1, st.State().Page)

	st = seeded(t, base)
	st.SetPage(9)
	assert.Equal(t, 9, st.State().Page)
}

func TestAddRemoveFilter(t *testing.T) {
	st := seeded(t, State{Page: 3, PerPage: 50, Filters: []Filter{{Ref: "a", Op: "eq", Val: "1"}}})
	st.AddFilter(Filter{Ref: "b", Op: "ne", Val: "2"})
	assert.Len(t, st.State().Filters, 2)
	assert.Equal(t, 1, st.State().Page)

	st.SetPage(5)
	st.RemoveFilter(Filter{Ref: "a", Op: "eq", Val: "1"})
	assert.Equal(t, []Filter{{Ref: "b", Op: "ne", Val: "2"}}, st.State().Filters)
	assert.Equal(t, 1, st.State().Page)
}

func TestReconcileBothDirections(t *testing.T) {
	st := NewStore(url.Values{})

	// nothing changed: URL is left alone
	v, changed := st.URLValues()
	assert.False(t, changed)
	assert.True(t, Equal(FromValues(v), st.State()))

	// memory change is written to the URL exactly once
	st.SetPage(2)
	v, changed = st.URLValues()
	assert.True(t, changed)
	assert.Equal(t, 2, FromValues(v).Page)
	_, changed = st.URLValues()
	assert.False(t, changed)

	// back navigation: URL differs from memory, memory adopts it
	back := State{Page: 1, PerPage: 50, Filters: []Filter{}}
	assert.True(t, st.SyncFromURL(back.Values()))
	assert.Equal(t, 1, st.State().Page)
	assert.False(t, st.SyncFromURL(back.Values()), "equal states must not re-adopt")

	_, changed = st.URLValues()
	assert.False(t, changed, "after adoption memory and URL agree")
}

func TestStateReturnsCopy(t *testing.T) {
	st := seeded(t, State{Page: 1, PerPage: 50, Sort: &Sort{Ref: "a", Dir: Asc}, Filters: []Filter{{Ref: "x", Op: "eq", Val: "y"}}})
	s := st.State()
	s.Sort.Dir = Desc
	s.Filters[0].Val = "changed"
	assert.Equal(t, Asc, st.State().Sort.Dir)
	assert.Equal(t, "y", st.State().Filters[0].Val)
}
