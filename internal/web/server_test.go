package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsuite/internal"
	"partsuite/internal/pdfdoc"
	"partsuite/internal/pipeline"
)

type fakeUploader struct {
	report pipeline.Report
	err    error
	got    []byte
}

func (f *fakeUploader) ProcessBytes(ctx context.Context, data []byte) (pipeline.Report, error) {
	f.got = data
	return f.report, f.err
}

func newTestServer(t *testing.T, up *fakeUploader) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.MkdirAll(filepath.Join(root, pdfdoc.InvoicesDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, pdfdoc.InvoicesDir, "W1.pdf"), []byte("%PDF-1.4 invoice"), 0o644))
	srv := NewServer(up, pdfdoc.NewArtifactWriter(root, nil), 1, nil)
	return srv.Router(), root
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func post(t *testing.T, r http.Handler, url string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r, _ := newTestServer(t, &fakeUploader{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestUploadReturnsInvoicesWithLinks(t *testing.T) {
	up := &fakeUploader{report: pipeline.Report{
		RunID:    "run-1",
		Method:   "embedded",
		Pages:    3,
		Sections: 1,
		Invoices: []internal.ParsedInvoice{{
			Metadata:  internal.InvoiceMetadata{Key: "W1", NumberNorm: "09308000W1"},
			Artifacts: &internal.ArtifactSet{InvoicePDF: "output/invoices/W1.pdf"},
		}},
	}}
	r, _ := newTestServer(t, up)

	body, ct := multipartBody(t, "file", "bundle.pdf", []byte("%PDF-1.4 bundle"))
	rec := post(t, r, "/upload?embed=1", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "%PDF-1.4 bundle", string(up.got))

	var resp struct {
		RunID    string `json:"run_id"`
		Invoices []struct {
			Metadata internal.InvoiceMetadata `json:"metadata"`
			Links    fileLinks                `json:"links"`
			Data     map[string]string        `json:"data"`
		} `json:"invoices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, "W1", resp.Invoices[0].Metadata.Key)
	assert.Equal(t, "/output/invoices/W1.pdf", resp.Invoices[0].Links.InvoicePDF)

	decoded, err := base64.StdEncoding.DecodeString(resp.Invoices[0].Data["invoice_pdf"])
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 invoice", string(decoded))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/output/invoices/W1.pdf", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 invoice", rec.Body.String())
}

func TestUploadRejectsBadInput(t *testing.T) {
	r, _ := newTestServer(t, &fakeUploader{})

	body, ct := multipartBody(t, "other", "bundle.pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusBadRequest, post(t, r, "/upload", body, ct).Code)

	body, ct = multipartBody(t, "file", "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, post(t, r, "/upload", body, ct).Code)

	big := append([]byte("%PDF-"), bytes.Repeat([]byte("x"), 2<<20)...)
	body, ct = multipartBody(t, "file", "big.pdf", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(t, r, "/upload", body, ct).Code)
}

func TestUploadMapsInputErrorsTo422(t *testing.T) {
	up := &fakeUploader{
		report: pipeline.Report{RunID: "run-2"},
		err:    internal.NewStageError(internal.StageSegment, -1, -1, internal.ErrNoInvoices),
	}
	r, _ := newTestServer(t, up)
	body, ct := multipartBody(t, "file", "bundle.pdf", []byte("%PDF-1.4"))
	rec := post(t, r, "/upload", body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no invoice sections found")

	up.err = internal.NewStageError(internal.StageAcquire, -1, -1, internal.ErrTimeout)
	body, ct = multipartBody(t, "file", "bundle.pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusInternalServerError, post(t, r, "/upload", body, ct).Code)
}

func TestFileEndpoint(t *testing.T) {
	r, _ := newTestServer(t, &fakeUploader{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files?path=output/invoices/W1.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 invoice")), resp["data"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files?path=../secrets.pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files?path=output/invoices/missing.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
