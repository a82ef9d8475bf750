package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const graphSource = `import { used, unused } from './lib';

function helper() {
  return used;
}

function ping() {
  return pong();
}

function pong() {
  return ping();
}

export function Box() {
  return helper();
}

export function Card() {
  return Box();
}

export function Chip() {
  return 1;
}

console.log(Chip);
`

func TestReferenceGraph_InDegrees(t *testing.T) {
	tree := parseTS(t, graphSource)
	rg, err := buildReferenceGraph(tree, "Card")
	require.NoError(t, err)

	degrees, err := rg.inDegrees()
	require.NoError(t, err)

	assert.Equal(t, 1, degrees["helper"])
	assert.Equal(t, 1, degrees["used"])
	assert.Equal(t, 0, degrees["unused"])
	assert.Equal(t, 1, degrees["Box"])
	assert.Equal(t, 1, degrees["Card"], "target is pinned by the root")
	assert.Equal(t, 1, degrees["Chip"], "side-effect statements are roots")
	assert.Equal(t, 1, degrees["ping"])
}

func TestReferenceGraph_UnknownTarget(t *testing.T) {
	tree := parseTS(t, graphSource)
	_, err := buildReferenceGraph(tree, "Missing")
	assert.Error(t, err)
}

func TestReferenceGraph_PruneExportsCascades(t *testing.T) {
	tree := parseTS(t, graphSource)
	rg, err := buildReferenceGraph(tree, "Box")
	require.NoError(t, err)

	removed, err := rg.pruneExports(tree)
	require.NoError(t, err)

	// Chip is referenced by a side-effect statement and survives
	assert.Equal(t, []string{"Card"}, declarationNames(removed))

	degrees, err := rg.inDegrees()
	require.NoError(t, err)
	assert.Equal(t, 1, degrees["Box"], "only the root references Box once Card is gone")
}

func TestReferenceGraph_PruneExportsInDeclarationOrder(t *testing.T) {
	tree := parseTS(t, `export function A() {
  return B();
}

export function B() {
  return 1;
}

export function Target() {}
`)
	rg, err := buildReferenceGraph(tree, "Target")
	require.NoError(t, err)

	removed, err := rg.pruneExports(tree)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, declarationNames(removed))
}

func TestReferenceGraph_SweepModes(t *testing.T) {
	tree := parseTS(t, graphSource)
	rg, err := buildReferenceGraph(tree, "Card")
	require.NoError(t, err)

	refcount, err := rg.sweep(ModeRefCount)
	require.NoError(t, err)
	assert.Equal(t, []string{"unused"}, declarationNames(refcount))

	closure, err := rg.sweep(ModeClosure)
	require.NoError(t, err)
	assert.Equal(t, []string{"unused", "ping", "pong"}, declarationNames(closure))
}

func TestReferenceGraph_Retention(t *testing.T) {
	tree := parseTS(t, graphSource)
	rg, err := buildReferenceGraph(tree, "Card")
	require.NoError(t, err)

	via := make(map[string][]string)
	for _, entry := range rg.retention() {
		via[entry.Name] = entry.Via
	}
	assert.Equal(t, []string{"Card", "Box", "helper", "used"}, via["used"])
	assert.Equal(t, []string{"Chip"}, via["Chip"])
	assert.Empty(t, via["ping"])
	assert.Empty(t, via["unused"])
}
