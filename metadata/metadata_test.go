package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dicom-annotations/constants"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
)

var header = Header{
	"0008,0018": "1.2.3.4",
	"0008,0020": "20230405",
	"0008,0060": "MR",
	"0010,0010": "Doe^Jane",
	"0010,0020": "A1",
	"0018,0080": "2000",
}

type countingLoader struct {
	calls int
	err   error
}

func (loader *countingLoader) LoadInstanceHeader(_ context.Context, uid string) (Header, error) {
	loader.calls++
	if loader.err != nil {
		return nil, loader.err
	}
	return header, nil
}

func (loader *countingLoader) HeaderValue(ctx context.Context, uid, tagID string) (string, bool) {
	h, err := loader.LoadInstanceHeader(ctx, uid)
	if err != nil {
		return "", false
	}
	v, found := h[tagID]
	return v, found
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "0008,103e", NormalizeTag("0008,103E"))
	assert.Equal(t, "0010,0010", NormalizeTag("(0010,0010)"))
	assert.Equal(t, "0010,0010", NormalizeTag("00100010"))
	assert.Equal(t, "0010,0010", NormalizeTag(" 0010, 0010 "))
	assert.Equal(t, "0008,103e", FormatTag(0x0008, 0x103E))
}

func TestFieldTable(t *testing.T) {
	tags := make(map[string]string)
	for _, field := range append(append([]Field{}, Fields...), MRFields...) {
		_, dup := tags[field.Tag]
		assert.False(t, dup, field.Tag)
		assert.Equal(t, NormalizeTag(field.Tag), field.Tag)
		tags[field.Tag] = field.Name
	}
	assert.Equal(t, FieldReferringPhysician, tags["0008,0090"])
	assert.Equal(t, FieldSeriesDescription, tags["0008,103e"])
	assert.Equal(t, FieldPatientPosition, tags["0018,5100"])
	assert.Equal(t, FieldRepetitionTime, tags["0018,0080"])
	assert.Equal(t, FieldEchoTime, tags["0018,0081"])
	assert.Len(t, tags, 18)
}

func TestLookupField(t *testing.T) {
	store := NewMemoryStore()
	store.Put("1.2.3.4", header)
	ctx := context.Background()

	assert.Equal(t, "Doe^Jane", LookupField(ctx, store, "1.2.3.4", "0010,0010"))
	assert.Equal(t, "Doe^Jane", LookupField(ctx, store, "1.2.3.4", "(0010,0010)"))
	assert.Equal(t, constants.Unknown, LookupField(ctx, store, "1.2.3.4", "0010,0040"))
	assert.Equal(t, constants.Unknown, LookupField(ctx, store, "9.9.9", "0010,0010"))
	assert.Equal(t, constants.Unknown, LookupField(ctx, store, "", "0010,0010"))
	assert.Equal(t, constants.Unknown, LookupField(ctx, nil, "1.2.3.4", "0010,0010"))
}

func TestExtractFillsEveryField(t *testing.T) {
	store := NewMemoryStore()
	store.Put("1.2.3.4", header)

	record := Extract(context.Background(), store, "1.2.3.4", Fields, MRFields)
	assert.Len(t, record, len(Fields)+len(MRFields))
	for _, field := range Fields {
		_, found := record[field.Name]
		assert.True(t, found, field.Name)
	}
	assert.Equal(t, "20230405", record[FieldStudyDate])
	assert.Equal(t, "2000", record[FieldRepetitionTime])
	assert.Equal(t, constants.Unknown, record[FieldEchoTime])
	assert.Equal(t, constants.Unknown, record[FieldManufacturer])
	assert.Equal(t, constants.Unknown, Record{}.Get(FieldModality))
}

func TestExtractLoadsHeaderOnce(t *testing.T) {
	{
		loader := &countingLoader{}
		record := Extract(context.Background(), loader, "1.2.3.4", Fields)
		assert.Equal(t, 1, loader.calls)
		assert.Equal(t, "A1", record[FieldPatientID])
	}
	{
		loader := &countingLoader{err: errors.New("orthanc down")}
		record := Extract(context.Background(), loader, "1.2.3.4", Fields)
		assert.Equal(t, 1, loader.calls)
		assert.Len(t, record, len(Fields))
		assert.Equal(t, constants.Unknown, record[FieldPatientID])
	}
}

func mustElement(t *testing.T, tg tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(tg, value)
	require.NoError(t, err)
	return elem
}

func TestHeaderFromDataset(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.SOPInstanceUID, []string{"1.2.840.1"}),
		mustElement(t, tag.PatientName, []string{"Doe^John "}),
		mustElement(t, tag.Modality, []string{"MR"}),
		mustElement(t, tag.SeriesDescription, []string{"T2 AX"}),
		mustElement(t, tag.Rows, []int{512}),
	}}

	h := HeaderFromDataset(ds)
	assert.Equal(t, "1.2.840.1", h[TagSOPInstanceUID])
	assert.Equal(t, "Doe^John", h["0010,0010"])
	assert.Equal(t, "T2 AX", h["0008,103e"])
	assert.Equal(t, "512", h["0028,0010"])

	store := NewDatasetStore(zap.NewNop())
	uid, err := store.index("memory", ds)
	require.NoError(t, err)
	assert.Equal(t, "1.2.840.1", uid)
	assert.Equal(t, "MR", LookupField(context.Background(), store, uid, "0008,0060"))

	store.Forget("memory")
	assert.Equal(t, 0, store.Len())
}

func TestDatasetStoreRejectsHeaderWithoutUID(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.PatientName, []string{"Doe^John"}),
	}}
	store := NewDatasetStore(zap.NewNop())
	_, err := store.index("memory", ds)
	assert.Error(t, err)
}

func TestDatasetStoreLoadFileError(t *testing.T) {
	store := NewDatasetStore(zap.NewNop())
	_, err := store.LoadFile("/does/not/exist.dcm")
	assert.Error(t, err)
}

func newOrthancServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/tools/lookup", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "1.2.3.4" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"ID":"abc-123","Path":"/instances/abc-123","Type":"Instance"}]`))
	})
	mux.HandleFunc("/instances/abc-123/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"0008,0060":"CT","0008,103E":"Chest","0010,0010":"Roe^Richard","0008,1140":[{"0008,1150":"x"}],"0010,1010":null}`))
	})
	return httptest.NewServer(mux)
}

func TestOrthancStore(t *testing.T) {
	server := newOrthancServer(t)
	defer server.Close()

	store := NewOrthancStore(server.URL+"/", nil, 0, zap.NewNop())
	ctx := context.Background()

	id, err := store.FindInstanceByUID(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)

	h, err := store.LoadInstanceHeader(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "Chest", h["0008,103e"])
	_, hasSequence := h["0008,1140"]
	assert.False(t, hasSequence)
	_, hasNull := h["0010,1010"]
	assert.False(t, hasNull)

	record := Extract(ctx, store, "1.2.3.4", Fields)
	assert.Equal(t, "CT", record[FieldModality])
	assert.Equal(t, constants.Unknown, record[FieldPatientAge])

	missing := Extract(ctx, store, "5.6.7", Fields)
	assert.Equal(t, constants.Unknown, missing[FieldModality])
}

func TestHeaderAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	memory := NewMemoryStore()
	engine := gin.New()
	NewHeaderAPI(memory, memory, zap.NewNop()).InitRoute(engine, "headers")

	{
		w := httptest.NewRecorder()
		req := httptest.NewRequest("PUT", "/headers/1.2.3.4", strings.NewReader(`{"0008,0060":"MR","0018,0081":"80"}`))
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	{
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/headers/1.2.3.4/fields", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"Echo Time":"80"`)
		assert.Contains(t, w.Body.String(), `"Patient Name":"Unknown"`)
	}
	{
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/headers/1.2.3.4", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"modality":"MR"`)
		assert.Contains(t, w.Body.String(), `"study_instance_uid":"Unknown"`)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/headers/9.9", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
	{
		w := httptest.NewRecorder()
		req := httptest.NewRequest("PUT", "/headers/1.2.3.4", strings.NewReader(`not json`))
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	{
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("DELETE", "/headers/1.2.3.4", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("DELETE", "/headers/1.2.3.4", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
}

func encodeDicom(path, sopUID, modality string) error {
	values := []struct {
		tag   tag.Tag
		value string
	}{
		{tag.MediaStorageSOPClassUID, "1.2.840.10008.5.1.4.1.1.4"},
		{tag.MediaStorageSOPInstanceUID, sopUID},
		{tag.TransferSyntaxUID, "1.2.840.10008.1.2.1"},
		{tag.SOPInstanceUID, sopUID},
		{tag.Modality, modality},
		{tag.PatientName, "Doe^Jane"},
		{tag.RepetitionTime, "2000"},
	}
	elements := make([]*dicom.Element, 0, len(values))
	for _, v := range values {
		elem, err := dicom.NewElement(v.tag, []string{v.value})
		if err != nil {
			return err
		}
		elements = append(elements, elem)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return dicom.Write(f, dicom.Dataset{Elements: elements})
}

func writeDicom(t *testing.T, path, sopUID, modality string) {
	require.NoError(t, encodeDicom(path, sopUID, modality))
}

func TestDatasetStoreLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeDicom(t, filepath.Join(dir, "a.dcm"), "1.2.3", "MR")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not dicom"), 0o644))

	store := NewDatasetStore(zap.NewNop())
	count, err := store.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	record := Extract(context.Background(), store, "1.2.3", Fields, MRFields)
	assert.Equal(t, "MR", record[FieldModality])
	assert.Equal(t, "2000", record[FieldRepetitionTime])
	assert.Equal(t, constants.Unknown, record[FieldEchoTime])
}

func TestDatasetStoreWatch(t *testing.T) {
	dir, staging := t.TempDir(), t.TempDir()
	store := NewDatasetStore(zap.NewNop())

	changed := make(chan string, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, dir, func(uid string) {
			select {
			case changed <- uid:
			default:
			}
		})
	}()

	// The watcher may not be registered yet, so keep dropping fresh files in
	// until one is seen.
	var seen string
	attempt := 0
	require.Eventually(t, func() bool {
		select {
		case seen = <-changed:
			return true
		default:
		}
		attempt++
		src := filepath.Join(staging, fmt.Sprintf("new-%d.dcm", attempt))
		if err := encodeDicom(src, "4.5.6", "CT"); err == nil {
			_ = os.Rename(src, filepath.Join(dir, filepath.Base(src)))
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "4.5.6", seen)
	assert.Equal(t, "CT", LookupField(context.Background(), store, "4.5.6", "0008,0060"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
