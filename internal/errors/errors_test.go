package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderPreservesWrappedError(t *testing.T) {
	base := stderrors.New("disk full")
	err := New(base).
		Component("localstore").
		Category(CategoryDatabase).
		Context("operation", "enqueue").
		Build()

	require.Error(t, err)
	assert.Equal(t, "disk full", err.Error())
	assert.True(t, stderrors.Is(err, base))
	assert.Equal(t, "localstore", err.GetComponent())
	assert.Equal(t, string(CategoryDatabase), err.GetCategory())
	assert.Equal(t, "enqueue", err.GetContext()["operation"])
}

func TestCategoryMatching(t *testing.T) {
	a := Newf("reserve failed").Category(CategorySyncQueue).Build()
	b := Newf("mark failed").Category(CategorySyncQueue).Build()
	c := Newf("probe failed").Category(CategoryNetwork).Build()

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestDefaults(t *testing.T) {
	err := Newf("oops").Build()
	assert.Equal(t, ComponentUnknown, err.GetComponent())
	assert.Equal(t, string(CategoryGeneric), err.GetCategory())
	assert.Nil(t, err.GetContext())
}

func TestSentinelWrapping(t *testing.T) {
	err := New(ErrStoreTransient).Component("localstore").Category(CategoryDatabase).Build()
	assert.True(t, stderrors.Is(err, ErrStoreTransient))
	assert.False(t, stderrors.Is(err, ErrStoreUnavailable))
}
