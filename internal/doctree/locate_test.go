package doctree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate_Scenario(t *testing.T) {
	tree := scenarioTree(t)

	tests := []struct {
		line int
		want string
	}{
		{12, "C"},
		{6, "B"},
		{16, "D"},
		{3, "A"},
		{0, "A"},
		{5, "B"},
		{14, "C"},
		{15, "D"},
		{19, "D"},
	}
	for _, tt := range tests {
		n, ok := Locate(tree, tt.line)
		require.True(t, ok, "line %d", tt.line)
		assert.Equal(t, tt.want, n.Label, "line %d", tt.line)
	}

	_, ok := Locate(tree, 25)
	assert.False(t, ok)
	_, ok = Locate(tree, -1)
	assert.False(t, ok)
	_, ok = Locate(nil, 0)
	assert.False(t, ok)
}

func TestLocate_BeforeFirstHeading(t *testing.T) {
	tree, _ := Build([]Symbol{sym("intro", 4, 1)}, 10)
	_, ok := Locate(tree, 2)
	assert.False(t, ok)
	n, ok := Locate(tree, 4)
	require.True(t, ok)
	assert.Equal(t, "intro", n.Label)
}

func TestFindByHeader(t *testing.T) {
	tree := scenarioTree(t)

	n, ok := FindByHeader(tree, 10)
	require.True(t, ok)
	assert.Equal(t, "C", n.Label)

	_, ok = FindByHeader(tree, 11)
	assert.False(t, ok)
}

func TestHeaderAtOrAfter(t *testing.T) {
	tree := scenarioTree(t)

	tests := []struct {
		line int
		want string
		ok   bool
	}{
		{0, "A", true},
		{1, "B", true},
		{5, "B", true},
		{7, "C", true},
		{11, "D", true},
		{16, "", false},
	}
	for _, tt := range tests {
		n, ok := HeaderAtOrAfter(tree, tt.line)
		assert.Equal(t, tt.ok, ok, "line %d", tt.line)
		if tt.ok {
			assert.Equal(t, tt.want, n.Label, "line %d", tt.line)
		}
	}
}

func TestEndInsertionLine(t *testing.T) {
	tree := scenarioTree(t)
	assert.Equal(t, 20, EndInsertionLine(tree))
}

func TestWalk_DocumentOrder(t *testing.T) {
	tree := scenarioTree(t)
	var got []string
	var depths []int
	Walk(tree, func(n *DocNode, depth int) bool {
		got = append(got, n.Label)
		depths = append(depths, depth)
		return true
	})
	assert.Equal(t, []string{"A", "B", "C", "D"}, got)
	assert.Equal(t, []int{0, 1, 2, 0}, depths)
}
