package scope

import (
	"testing"

	"github.com/kbarchive/curator/facts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func must(t *testing.T, err error) {
	if err != nil {
		assert.NoError(t, err)
		t.FailNow()
	}
}

func TestChildrenAttachOnPop(t *testing.T) {
	root := NewRoot("package.zip", facts.NewStore(), nil)

	child := root.Push("nested.tar")
	assert.Equal(t, 1, child.Depth)
	assert.Empty(t, root.Children)

	grandchild := child.Push("")
	assert.Equal(t, 2, grandchild.Depth)

	back, err := grandchild.Pop()
	must(t, err)
	assert.Equal(t, child, back)

	back, err = child.Pop()
	must(t, err)
	assert.Equal(t, root, back)

	assert.Len(t, root.Children, 1)
	assert.Equal(t, child, root.Find("nested.tar"))
	assert.Equal(t, grandchild, root.Find("nested.tar", ""))
	assert.Nil(t, root.Find("missing"))
	assert.Equal(t, "package.zip > nested.tar > (anonymous)", grandchild.Path())

	var visited []string
	must(t, root.Walk(func(s *Scope) error {
		visited = append(visited, s.Name)
		return nil
	}))
	assert.Equal(t, []string{"package.zip", "nested.tar", ""}, visited)
}

func TestUnbalancedPop(t *testing.T) {
	root := NewRoot("root", facts.NewStore(), nil)

	_, err := root.Pop()
	assert.True(t, errors.Is(err, ErrUnbalancedPop))

	child := root.Push("child")
	_, err = child.Pop()
	must(t, err)
	_, err = child.Pop()
	assert.True(t, errors.Is(err, ErrUnbalancedPop))
	assert.Len(t, root.Children, 1)
}

func TestSharedStore(t *testing.T) {
	store := facts.NewStore()
	root := NewRoot("root", store, nil)
	child := root.Push("child")

	root.Associate("A", "P", "P", map[string]string{"k": "v"})
	child.Associate("B", "P", "P", map[string]string{"k": "v"})

	snap := store.Drain()
	assert.Equal(t, []string{"A", "B"}, snap.Record("P").Claimants("k", "v"))
	assert.NotNil(t, child.Consumer())
}
