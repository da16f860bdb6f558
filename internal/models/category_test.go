package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() CategoryTree {
	return CategoryTree{
		{
			ID:     "root",
			Name:   "全部指标分类",
			IsOpen: true,
			Children: []CategoryNode{
				{ID: "c1", Name: "系统应用情况"},
				{
					ID:   "c2",
					Name: "系统数据情况",
					Children: []CategoryNode{
						{ID: "c2-1", Name: "接入一体化大数据平台能力"},
						{ID: "c2-2", Name: "云池接入情况"},
					},
				},
			},
		},
	}
}

func TestCategoryTree_AddChildIsImmutable(t *testing.T) {
	tree := sampleTree()

	updated, err := tree.AddChild("c1", CategoryNode{ID: "c1-1", Name: "访问量"})
	require.NoError(t, err)

	assert.False(t, tree.Contains("c1-1"), "original tree must not change")
	assert.True(t, updated.Contains("c1-1"))

	parent, ok := updated.Find("c1")
	require.True(t, ok)
	assert.True(t, parent.IsOpen)

	_, err = tree.AddChild("missing", CategoryNode{ID: "x"})
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	_, err = tree.AddChild("c1", CategoryNode{ID: "c2"})
	assert.Error(t, err, "duplicate ids are rejected")
}

func TestCategoryTree_AddRootAndRename(t *testing.T) {
	tree := sampleTree()

	updated, err := tree.AddRoot(CategoryNode{ID: "r2", Name: "专项考核"})
	require.NoError(t, err)
	assert.Len(t, updated, 2)
	assert.Len(t, tree, 1)

	renamed, err := updated.Rename("c2-2", "云资源接入")
	require.NoError(t, err)
	node, _ := renamed.Find("c2-2")
	assert.Equal(t, "云资源接入", node.Name)

	orig, _ := updated.Find("c2-2")
	assert.Equal(t, "云池接入情况", orig.Name)
}

func TestCategoryTree_DeleteSubtree(t *testing.T) {
	tree := sampleTree()

	assert.ElementsMatch(t, []string{"c2", "c2-1", "c2-2"}, tree.SubtreeIDs("c2"))

	pruned, err := tree.Delete("c2")
	require.NoError(t, err)
	assert.False(t, pruned.Contains("c2"))
	assert.False(t, pruned.Contains("c2-1"))
	assert.True(t, pruned.Contains("c1"))
	assert.True(t, tree.Contains("c2-1"))

	_, err = tree.Delete("nope")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestCategoryTree_FlattenAndValidate(t *testing.T) {
	flat := sampleTree().Flatten()
	require.Len(t, flat, 5)
	assert.Equal(t, "root", flat[0].ID)
	assert.Equal(t, 0, flat[0].Depth)
	assert.Equal(t, "c2-1", flat[3].ID)
	assert.Equal(t, 2, flat[3].Depth)
	assert.Equal(t, "c2", flat[3].ParentID)

	assert.NoError(t, sampleTree().Validate())

	dup := sampleTree()
	dup[0].Children[0].ID = "c2"
	assert.Error(t, dup.Validate())
}

func TestCategoryTree_Toggle(t *testing.T) {
	toggled, err := sampleTree().Toggle("root")
	require.NoError(t, err)
	root, _ := toggled.Find("root")
	assert.False(t, root.IsOpen)
}
