package reader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/internal/step/reader"
	storage "github.com/tigerroll/iconium/pkg/batch/adapter/storage"
	"github.com/tigerroll/iconium/pkg/batch/adapter/storage/local"
	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

func newReader(t *testing.T, content string) *reader.ListingReader {
	t.Helper()
	return newReaderFor(t, content, "input.json")
}

func newReaderFor(t *testing.T, content, input string) *reader.ListingReader {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.json"), []byte(content), 0644))

	cfg := config.NewConfig()
	cfg.Surfin.AdapterConfigs["storage"] = map[string]interface{}{
		"local": map[string]interface{}{"type": "local", "base_dir": dir},
	}
	resolver := storage.NewConnectionResolver(cfg, local.NewLocalProvider(cfg))
	t.Cleanup(func() { _ = resolver.CloseAll() })
	return reader.NewListingReader(resolver, input, "local")
}

func readAll(t *testing.T, r *reader.ListingReader) ([]string, []error) {
	t.Helper()
	var items []string
	var errs []error
	for i := 0; i < 100; i++ {
		raw, err := r.Read(context.Background())
		if errors.Is(err, port.ErrNoMoreItems) {
			return items, errs
		}
		if err != nil {
			errs = append(errs, err)
			if !exception.IsSkippable(err) {
				return items, errs
			}
			continue
		}
		var v struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &v))
		items = append(items, v.ID)
	}
	t.Fatal("reader did not terminate")
	return nil, nil
}

func TestListingReader_ReadsEveryObject(t *testing.T) {
	r := newReader(t, `[ {"id":"a"}, {"id":"b", "nested": {"x": [1, 2]}}, {"id":"c"} ]`)
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	items, errs := readAll(t, r)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"a", "b", "c"}, items)

	ec, err := r.GetExecutionContext(context.Background())
	require.NoError(t, err)
	n, _ := ec.GetInt(reader.ReadCountKey)
	assert.Equal(t, 3, n)
}

func TestListingReader_NonObjectElementIsSkippable(t *testing.T) {
	r := newReader(t, `[{"id":"a"}, 42, {"id":"c"}]`)
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	items, errs := readAll(t, r)
	assert.Equal(t, []string{"a", "c"}, items)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], exception.ErrFormat))
	assert.True(t, exception.IsSkippable(errs[0]))

	var withPayload port.SkippedItemPayload
	require.True(t, errors.As(errs[0], &withPayload))
	payload, ok := withPayload.Payload().(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, "42", string(payload))
}

func TestListingReader_TruncatedInputEndsGracefully(t *testing.T) {
	for name, content := range map[string]string{
		"unterminated array": `[{"id":"a"},{"id":"b"}`,
		"truncated element":  `[{"id":"a"},{"id":"b"},{"id":"c", "about": {"Bed`,
	} {
		t.Run(name, func(t *testing.T) {
			r := newReader(t, content)
			require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
			defer r.Close(context.Background())

			items, errs := readAll(t, r)
			assert.Empty(t, errs)
			assert.Equal(t, []string{"a", "b"}, items)
		})
	}
}

func TestListingReader_OpenRejectsNonArray(t *testing.T) {
	for name, content := range map[string]string{
		"object": `{"id":"a"}`,
		"empty":  ``,
	} {
		t.Run(name, func(t *testing.T) {
			r := newReader(t, content)
			err := r.Open(context.Background(), model.NewExecutionContext())
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrFormat))
			assert.False(t, exception.IsSkippable(err))
		})
	}
}

func TestListingReader_MissingInputFailsOpen(t *testing.T) {
	r := newReaderFor(t, `[]`, "missing.json")
	err := r.Open(context.Background(), model.NewExecutionContext())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrFormat))
	assert.False(t, exception.IsSkippable(err))
}

func TestListingReader_EmptyArray(t *testing.T) {
	r := newReader(t, `[]`)
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
}

func TestListingReader_NotOpen(t *testing.T) {
	r := newReader(t, `[{"id":"a"}]`)

	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, exception.ErrNotOpen)

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()), "close is idempotent")

	_, err = r.Read(context.Background())
	assert.ErrorIs(t, err, exception.ErrNotOpen)
}

func TestListingReader_RestartSkipsConsumedElements(t *testing.T) {
	r := newReader(t, `[{"id":"a"}, "junk", {"id":"c"}, {"id":"d"}]`)

	ec := model.NewExecutionContext()
	ec.Put(reader.ReadCountKey, float64(2)) // as decoded from a stored checkpoint
	require.NoError(t, r.Open(context.Background(), ec))
	defer r.Close(context.Background())

	items, errs := readAll(t, r)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"c", "d"}, items)

	out, err := r.GetExecutionContext(context.Background())
	require.NoError(t, err)
	n, _ := out.GetInt(reader.ReadCountKey)
	assert.Equal(t, 4, n)
}

func TestListingReader_SyntaxErrorIsFatal(t *testing.T) {
	for name, content := range map[string]string{
		"invalid character": `[{"id":"a"}, {"id": @}, {"id":"c"}]`,
		"doubled comma":     `[{"id":"a"},, {"id":"c"}]`,
		"broken literal":    `[{"id":"a"}, {"id": tru}, {"id":"c"}]`,
		"broken number":     `[{"id":"a"}, {"n": 1.2.3}, {"id":"c"}]`,
		"missing comma":     `[{"id":"a"} {"id":"c"}]`,
		"stray bytes":       `[{"id":"a"}, xyz, {"id":"c"}]`,
		"mismatched close":  `[{"id":"a"}} , {"id":"c"}]`,
		"trailing comma":    `[{"id":"a"}, ]`,
	} {
		t.Run(name, func(t *testing.T) {
			r := newReader(t, content)
			require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
			defer r.Close(context.Background())

			items, errs := readAll(t, r)
			assert.Equal(t, []string{"a"}, items)
			require.Len(t, errs, 1)
			assert.True(t, errors.Is(errs[0], exception.ErrFormat))
			assert.False(t, exception.IsSkippable(errs[0]))

			_, again := r.Read(context.Background())
			assert.Equal(t, errs[0], again, "the reader stays failed")
		})
	}
}
