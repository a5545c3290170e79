package tasks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceymoss/go-taskplan/internal/core"
	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/storage"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

func completeFamily(t *testing.T) Family {
	t.Helper()
	reg, err := NewRegistry(DefaultFamilies()...)
	require.NoError(t, err)
	f, err := reg.Get("report_file_complete")
	require.NoError(t, err)
	return f
}

func TestNewPlanValidation(t *testing.T) {
	_, err := NewPlan()
	assert.Error(t, err)

	_, err = NewPlan(Entry{Name: "a.txt"}, Entry{Name: "a.txt"})
	assert.True(t, apperr.IsCode(err, xerr.CONFIG_ERROR))

	_, err = NewPlan(Entry{Name: filepath.Join("sub", "a.txt")})
	assert.Error(t, err)

	p, err := NewPlan(Entry{Name: "a.txt", Content: "A"})
	require.NoError(t, err)
	entries := p.Entries()
	entries[0].Name = "mutated"
	assert.Equal(t, "a.txt", p.Entries()[0].Name, "计划不应被外部修改")
}

func TestFamilyDescriptorsOnePerEntry(t *testing.T) {
	root := t.TempDir()
	gen := NewGenerator(DefaultPlan(), root, 123, storage.NewLocalStorage())

	ds, err := gen.FamilyDescriptors(completeFamily(t))
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "alfa.txt", ds[0].Name())
	assert.Equal(t, "beta.txt", ds[1].Name())

	// 同一族内不同文件的目标不冲突
	seen := map[string]string{}
	for _, d := range ds {
		for _, target := range d.Targets() {
			other, dup := seen[target]
			assert.False(t, dup, "%s 与 %s 冲突", d.ID(), other)
			seen[target] = d.ID()
		}
	}
	assert.Equal(t, filepath.Join(root, "report_file_complete_alfa.txt", "size.json"), ds[0].Targets()[0])

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "生成阶段不应触碰文件系统")
}

func TestGenerateIsDeterministic(t *testing.T) {
	root := t.TempDir()
	gen := NewGenerator(DefaultPlan(), root, 123, storage.NewLocalStorage())
	f := completeFamily(t)

	g1, err := gen.Generate(f)
	require.NoError(t, err)
	g2, err := gen.Generate(f)
	require.NoError(t, err)

	assert.Equal(t, g1.Specs(), g2.Specs())
}

func TestGenerateLinksPrerequisites(t *testing.T) {
	gen := NewGenerator(DefaultPlan(), t.TempDir(), 123, storage.NewLocalStorage())
	reg, err := NewRegistry(DefaultFamilies()...)
	require.NoError(t, err)

	g, err := gen.Generate(reg.List()...)
	require.NoError(t, err)
	assert.Equal(t, 2+3*2, g.Len())

	for _, d := range g.Descriptors() {
		if d.Family() == CreateFamily {
			assert.Empty(t, g.Prerequisites(d.ID()))
			continue
		}
		prereqs := g.Prerequisites(d.ID())
		require.Len(t, prereqs, 1)
		create, ok := g.Descriptor(prereqs[0])
		require.True(t, ok)
		assert.Equal(t, create.Targets()[0], d.Dependency())
	}

	layers := g.Layers()
	require.Len(t, layers, 2)
	for _, d := range layers[0] {
		assert.Equal(t, CreateFamily, d.Family())
	}
	assert.Len(t, layers[1], 6)
}

func TestGenerateSameFamilyTwiceFails(t *testing.T) {
	gen := NewGenerator(DefaultPlan(), t.TempDir(), 123, storage.NewLocalStorage())
	f := completeFamily(t)

	_, err := gen.Generate(f, f)
	assert.True(t, apperr.IsCode(err, xerr.INVALID_GRAPH))
}

// 创建源文件后执行 report_file_complete，校验落盘的 JSON
func TestCompleteFamilyRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	gen := NewGenerator(DefaultPlan(), root, 123, storage.NewLocalStorage())

	g, err := gen.Generate(completeFamily(t))
	require.NoError(t, err)
	for _, layer := range g.Layers() {
		for _, d := range layer {
			require.NoError(t, d.Run(ctx))
		}
	}

	dir := filepath.Join(root, "report_file_complete_alfa.txt")
	source := filepath.Join(root, "alfa.txt")

	var size map[string]any
	raw, err := os.ReadFile(filepath.Join(dir, "size.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &size))
	assert.Equal(t, map[string]any{"name": source, "size": float64(len("you are alfa"))}, size)

	var all core.AllDataRecord
	raw, err = os.ReadFile(filepath.Join(dir, "alldata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &all))
	assert.Equal(t, source, all.Name)
	assert.EqualValues(t, 12, all.Size)
	assert.Equal(t, 123, all.Priority)

	info, err := os.Stat(source)
	require.NoError(t, err)
	assert.Equal(t, core.EpochSeconds(info), all.Mtime)
}
