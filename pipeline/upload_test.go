package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davemorin/meural-manager/geocode"
	"github.com/davemorin/meural-manager/meural"
	"github.com/davemorin/meural-manager/model"
	"github.com/davemorin/meural-manager/resize"
)

type fakeRemote struct {
	nextID      int
	failUploads map[string]error
	updateErr   error

	uploads []string
	updates map[int]string
	items   map[int]*meural.Item
	images  map[string][]byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:      100,
		failUploads: map[string]error{},
		updates:     map[int]string{},
		items:       map[int]*meural.Item{},
		images:      map[string][]byte{},
	}
}

func (r *fakeRemote) UploadItem(_ context.Context, filename string, _ []byte) (*meural.Item, error) {
	if err := r.failUploads[filename]; err != nil {
		return nil, err
	}
	r.nextID++
	r.uploads = append(r.uploads, filename)
	return &meural.Item{ID: r.nextID, Name: filename}, nil
}

func (r *fakeRemote) UpdateItem(_ context.Context, id int, name, description string) (*meural.Item, error) {
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	r.updates[id] = description
	return &meural.Item{ID: id, Name: name, Description: description}, nil
}

func (r *fakeRemote) GetItem(_ context.Context, id int) (*meural.Item, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return item, nil
}

func (r *fakeRemote) FetchImage(_ context.Context, url string) ([]byte, string, error) {
	data, ok := r.images[url]
	if !ok {
		return nil, "", errors.New("no such image")
	}
	return data, "image/jpeg", nil
}

type fakeStore struct {
	saveErr error
	records map[int]model.PhotoMetadata
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[int]model.PhotoMetadata{}}
}

func (s *fakeStore) Save(_ context.Context, rec model.PhotoMetadata) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	// Wholesale replace, mirroring the store's upsert.
	s.records[rec.ItemID] = rec
	return nil
}

func (s *fakeStore) GetByItemID(_ context.Context, id int) (*model.PhotoMetadata, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

type fakeGeo struct{ place *geocode.Place }

func (g *fakeGeo) Reverse(context.Context, float64, float64) *geocode.Place { return g.place }

type fakeCap struct{ text *string }

func (c *fakeCap) Caption(context.Context, []byte, string) *string { return c.text }

func testPipeline(remote *fakeRemote, store *fakeStore) *Pipeline {
	return &Pipeline{
		Remote: remote,
		Store:  store,
		Geo:    &fakeGeo{},
		Cap:    &fakeCap{},
		Norm:   resize.New(zap.NewNop()),
		Log:    zap.NewNop(),
	}
}

func stageFile(t *testing.T, name string, data []byte) File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return File{Name: name, Path: path}
}

func tinyJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	return buf.Bytes()
}

func TestProcessBatchOrderAndIsolation(t *testing.T) {
	remote := newFakeRemote()
	remote.failUploads["b.jpg"] = errors.New("vendor exploded")
	store := newFakeStore()
	p := testPipeline(remote, store)

	img := tinyJPEG(t)
	files := []File{
		stageFile(t, "a.jpg", img),
		stageFile(t, "b.jpg", img),
		stageFile(t, "c.jpg", img),
	}

	outcomes := p.ProcessBatch(context.Background(), files)

	require.Len(t, outcomes, 3)
	assert.Equal(t, "a.jpg", outcomes[0].Filename)
	assert.Equal(t, "b.jpg", outcomes[1].Filename)
	assert.Equal(t, "c.jpg", outcomes[2].Filename)

	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Contains(t, outcomes[1].Error, "vendor exploded")
	assert.True(t, outcomes[2].Success)

	// The failed sibling did not stop c.jpg from uploading.
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, remote.uploads)
}

func TestProcessBatchCleansStagedFiles(t *testing.T) {
	remote := newFakeRemote()
	remote.failUploads["bad.jpg"] = errors.New("nope")
	p := testPipeline(remote, newFakeStore())

	img := tinyJPEG(t)
	ok := stageFile(t, "ok.jpg", img)
	bad := stageFile(t, "bad.jpg", img)

	p.ProcessBatch(context.Background(), []File{ok, bad})

	_, err := os.Stat(ok.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(bad.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessBatchUnreadableFile(t *testing.T) {
	p := testPipeline(newFakeRemote(), newFakeStore())

	outcomes := p.ProcessBatch(context.Background(), []File{{Name: "ghost.jpg", Path: "/nonexistent/ghost.jpg"}})

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, "ghost.jpg", outcomes[0].Filename)
}

func TestProcessOnePushesComposedDescription(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()
	p := testPipeline(remote, store)
	capText := "Golden light on rooftops"
	p.Cap = &fakeCap{text: &capText}

	outcomes := p.ProcessBatch(context.Background(), []File{stageFile(t, "roof.jpg", tinyJPEG(t))})

	require.Len(t, outcomes, 1)
	out := outcomes[0]
	require.True(t, out.Success)
	// No EXIF timestamp and no GPS: only the caption makes it in.
	assert.Equal(t, "Golden light on rooftops", out.Description)
	assert.Equal(t, "Golden light on rooftops", remote.updates[out.ItemID])

	rec, err := store.GetByItemID(context.Background(), out.ItemID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "roof.jpg", rec.Filename)
}

func TestProcessOneDescriptionPushFailureIsNotFatal(t *testing.T) {
	remote := newFakeRemote()
	remote.updateErr = errors.New("update rejected")
	p := testPipeline(remote, newFakeStore())
	capText := "Quiet street"
	p.Cap = &fakeCap{text: &capText}

	outcomes := p.ProcessBatch(context.Background(), []File{stageFile(t, "street.jpg", tinyJPEG(t))})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
}

func TestProcessOneStoreFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	p := testPipeline(newFakeRemote(), store)

	outcomes := p.ProcessBatch(context.Background(), []File{stageFile(t, "x.jpg", tinyJPEG(t))})

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.NotZero(t, outcomes[0].ItemID)
	assert.Contains(t, outcomes[0].Error, "disk full")
}

func TestStoreReplaceSemanticsThroughPipeline(t *testing.T) {
	store := newFakeStore()
	place := "Paris, France"
	store.records[5] = model.PhotoMetadata{ItemID: 5, Filename: "old.jpg", Place: &place}

	fresh := model.PhotoMetadata{ItemID: 5, Filename: "new.jpg"}
	require.NoError(t, store.Save(context.Background(), fresh))

	rec, err := store.GetByItemID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "new.jpg", rec.Filename)
	assert.Nil(t, rec.Place, "old optional fields must not merge forward")
}

func TestAnalyzeComposesAndApplies(t *testing.T) {
	remote := newFakeRemote()
	remote.items[42] = &meural.Item{ID: 42, Image: "https://cdn/42.jpg"}
	remote.images["https://cdn/42.jpg"] = tinyJPEG(t)

	store := newFakeStore()
	taken := "2023-07-14T18:02:33"
	store.records[42] = model.PhotoMetadata{
		ItemID:   42,
		TakenAt:  &taken,
		Location: &model.Location{Latitude: 48.85, Longitude: 2.35},
	}

	p := testPipeline(remote, store)
	capText := "Golden light on rooftops"
	p.Cap = &fakeCap{text: &capText}
	p.Geo = &fakeGeo{place: &geocode.Place{City: "Paris", DisplayName: "Paris, France"}}

	res, err := p.Analyze(context.Background(), 42, true)

	require.NoError(t, err)
	assert.Equal(t, "Paris · Summer · Golden light on rooftops", res.Description)
	assert.True(t, res.Applied)
	assert.Equal(t, res.Description, remote.updates[42])

	// Place name backfilled into the stored record.
	rec, _ := store.GetByItemID(context.Background(), 42)
	require.NotNil(t, rec.Place)
	assert.Equal(t, "Paris, France", *rec.Place)
}

func TestAnalyzeWithoutApplyDoesNotPush(t *testing.T) {
	remote := newFakeRemote()
	remote.items[7] = &meural.Item{ID: 7}
	p := testPipeline(remote, newFakeStore())

	res, err := p.Analyze(context.Background(), 7, false)

	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, remote.updates)
}

func TestAnalyzeUnknownItemErrors(t *testing.T) {
	p := testPipeline(newFakeRemote(), newFakeStore())
	_, err := p.Analyze(context.Background(), 999, false)
	assert.Error(t, err)
}
