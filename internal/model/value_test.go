package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueEqual(t *testing.T) {
	assert.True(t, IntVal(3).Equal(IntVal(3)))
	assert.False(t, IntVal(3).Equal(IntVal(4)))
	assert.False(t, IntVal(3).Equal(StrVal("3")))
	assert.True(t, Null().Equal(Null()))

	l1 := ListVal([]*Value{IntVal(1), IntVal(2)})
	l2 := ListVal([]*Value{IntVal(1), IntVal(2)})
	l3 := ListVal([]*Value{IntVal(2), IntVal(1)})
	assert.True(t, l1.Equal(l2))
	assert.False(t, l1.Equal(l3), "list equality is order-sensitive")
}

func TestSetValDedupesAndSorts(t *testing.T) {
	s := SetVal([]*Value{IntVal(3), IntVal(1), IntVal(1), IntVal(2)})
	assert.Len(t, s.Set, 3)

	other := SetVal([]*Value{IntVal(2), IntVal(1), IntVal(3)})
	assert.True(t, s.Equal(other), "set construction order must not affect identity")
}

func TestMapValEquality(t *testing.T) {
	m1 := MapVal(map[string]*Value{"a": IntVal(1), "b": IntVal(2)})
	m2 := MapVal(map[string]*Value{"b": IntVal(2), "a": IntVal(1)})
	assert.True(t, m1.Equal(m2))

	m3 := MapVal(map[string]*Value{"a": IntVal(1)})
	assert.False(t, m1.Equal(m3))
}

func TestResourceValCarriesResource(t *testing.T) {
	r := Resource{URI: "daggerml:len"}
	v := ResourceVal(r)
	assert.Equal(t, DatumResource, v.Kind)
	assert.Equal(t, "daggerml:len", v.Resource.URI)
}
