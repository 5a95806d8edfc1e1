package extract

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/assetpipe/internal/naming"
)

func testNamer(t *testing.T) *naming.Namer {
	t.Helper()
	n, err := naming.New(naming.DefaultConfig())
	require.NoError(t, err)
	return n
}

func TestFinalizeDiscoveryOrder(t *testing.T) {
	agg := New(Options{})
	// completion order differs from discovery order
	agg.Collect("src/b.css", "main", 1, []byte(".b{}"))
	agg.Collect("src/a.css", "main", 0, []byte(".a{}"))

	art, err := agg.Finalize("main", testNamer(t))
	require.NoError(t, err)
	require.Equal(t, ".a{}\n.b{}", string(art.Content))
	require.Regexp(t, regexp.MustCompile(`^css/[0-9a-f]{8}\.main\.css$`), art.Path)
	require.Equal(t, "main.css", art.Key)
	require.Equal(t, naming.KindStyle, art.Kind)
}

func TestFinalizeLogsBundle(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })

	agg := New(Options{})
	agg.Collect("src/a.css", "main", 0, []byte(".a{}"))
	art, err := agg.Finalize("main", testNamer(t))
	require.NoError(t, err)

	require.Contains(t, buf.String(), `"message":"Finalized bundle"`)
	require.Contains(t, buf.String(), `"path":"`+art.Path+`"`)
	require.Contains(t, buf.String(), `"fragments":1`)
}

func TestFinalizeIgnoreOrder(t *testing.T) {
	namer := testNamer(t)

	build := func(order []string) []byte {
		agg := New(Options{IgnoreOrder: true})
		for i, id := range order {
			agg.Collect(id, "main", i, []byte(id))
		}
		art, err := agg.Finalize("main", namer)
		require.NoError(t, err)
		return art.Content
	}

	first := build([]string{"src/c.css", "src/a.css", "src/b.css"})
	second := build([]string{"src/b.css", "src/c.css", "src/a.css"})
	require.Equal(t, first, second)
	require.Equal(t, "src/a.css\nsrc/b.css\nsrc/c.css", string(first))
}

func TestFinalizeIgnoreOrderKeepsModuleFragmentsStable(t *testing.T) {
	agg := New(Options{IgnoreOrder: true})
	agg.Collect("src/a.css", "main", 3, []byte("second"))
	agg.Collect("src/a.css", "main", 1, []byte("first"))

	art, err := agg.Finalize("main", testNamer(t))
	require.NoError(t, err)
	require.Equal(t, "first\nsecond", string(art.Content))
}

func TestFinalizeIsIdempotent(t *testing.T) {
	agg := New(Options{})
	namer := testNamer(t)
	for i := range 5 {
		agg.Collect(fmt.Sprintf("m%d.css", i), "main", 4-i, []byte(fmt.Sprintf(".m%d{}", i)))
	}

	first, err := agg.Finalize("main", namer)
	require.NoError(t, err)
	second, err := agg.Finalize("main", namer)
	require.NoError(t, err)

	require.Equal(t, first.Content, second.Content)
	require.Equal(t, first.Path, second.Path)
}

func TestCollectCopiesContent(t *testing.T) {
	agg := New(Options{})
	buf := []byte(".a{}")
	agg.Collect("a.css", "main", 0, buf)
	buf[1] = 'z'

	art, err := agg.Finalize("main", testNamer(t))
	require.NoError(t, err)
	require.Equal(t, ".a{}", string(art.Content))
}

func TestKeysAndDiscard(t *testing.T) {
	agg := New(Options{})
	agg.Collect("a.css", "vendor", 0, []byte("v"))
	agg.Collect("b.css", "main", 1, []byte("m"))
	require.Equal(t, []string{"main", "vendor"}, agg.Keys())

	agg.Discard()
	require.Empty(t, agg.Keys())

	_, err := agg.Finalize("main", testNamer(t))
	require.True(t, errors.Is(err, ErrEmptyBundle))

	var be *BundleError
	require.True(t, errors.As(err, &be))
	require.Equal(t, "main", be.Bundle)
}

func TestCollectConcurrent(t *testing.T) {
	agg := New(Options{})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Collect(fmt.Sprintf("m%02d.css", i), "main", i, []byte(fmt.Sprintf("%02d", i)))
		}()
	}
	wg.Wait()

	art, err := agg.Finalize("main", testNamer(t))
	require.NoError(t, err)
	require.Len(t, art.Content, 50*2+49)
	require.Equal(t, "00\n01", string(art.Content[:5]))
}

func TestKeyUsesFilenameExtension(t *testing.T) {
	require.Equal(t, "main.css", New(Options{}).Key("main"))
	require.Equal(t, "licenses.txt", New(Options{Filename: "[name].[hash].txt"}).Key("licenses"))
}
