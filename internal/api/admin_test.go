package api

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"carshine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func uploadPhoto(t *testing.T, st *testStack, bookingID, message string, payload []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="after.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("message", message))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, st.ts.URL+"/api/v1/admin/bookings/"+bookingID+"/progress", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-user-id", "boss")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestProgressUpload(t *testing.T) {
	st := newTestStack(t, testAPIConfig())
	date := futureDate(5)

	resp := st.do(t, http.MethodPost, "/api/v1/bookings", "user-1", bookingRequest{
		Date: date, TimeSlot: "10:00 AM", ServiceID: "ceramic", CarMake: "BMW", CarModel: "M3",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Booking](t, resp)

	resp = uploadPhoto(t, st, created.ID, "Polishing done", []byte("fake-jpeg-bytes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	update := decodeBody[models.ProgressUpdate](t, resp)
	assert.Equal(t, created.ID, update.BookingID)
	assert.Equal(t, "Polishing done", update.Message)
	assert.Equal(t, "BMW M3", update.CarDetails)
	assert.Equal(t, "user-1@example.com", update.CustomerEmail)
	assert.Contains(t, update.ImageURL, "/files/progress-photos/progress_"+created.ID+"_")

	resp = st.do(t, http.MethodGet, "/api/v1/admin/bookings/"+created.ID+"/progress", "boss", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Updates []models.ProgressUpdate `json:"updates"`
	}](t, resp)
	require.Len(t, list.Updates, 1)
}

func TestProgressUploadUnknownBooking(t *testing.T) {
	st := newTestStack(t, testAPIConfig())

	resp := uploadPhoto(t, st, "missing-id", "hello", []byte("x"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExport(t *testing.T) {
	st := newTestStack(t, testAPIConfig())
	date := futureDate(7)

	resp := st.do(t, http.MethodPost, "/api/v1/bookings", "user-1", bookingRequest{
		Date: date, TimeSlot: "9:00 AM", ServiceID: "premium", CarMake: "Audi", CarModel: "A4",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Booking](t, resp)

	resp = st.do(t, http.MethodGet, "/api/v1/admin/export", "boss", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "bookings_export_")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	id, err := f.GetCellValue(exportSheetName, "A3")
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)

	svc, err := f.GetCellValue(exportSheetName, "D3")
	require.NoError(t, err)
	assert.Equal(t, "Premium Detail", svc)
}

func TestExportRange(t *testing.T) {
	st := newTestStack(t, testAPIConfig())
	date := futureDate(3)

	resp := st.do(t, http.MethodPost, "/api/v1/bookings", "user-1", bookingRequest{
		Date: date, TimeSlot: "1:00 PM", ServiceID: "basic",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Диапазон мимо брони: пустой лист, но файл валидный.
	path := fmt.Sprintf("/api/v1/admin/export?from=%s&to=%s", futureDate(30), futureDate(31))
	resp = st.do(t, http.MethodGet, path, "boss", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	id, err := f.GetCellValue(exportSheetName, "A3")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFilesStatic(t *testing.T) {
	st := newTestStack(t, testAPIConfig())
	date := futureDate(6)

	resp := st.do(t, http.MethodPost, "/api/v1/bookings", "user-1", bookingRequest{
		Date: date, TimeSlot: "3:00 PM", ServiceID: "basic",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Booking](t, resp)

	resp = uploadPhoto(t, st, created.ID, "", []byte("fake-jpeg-bytes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	update := decodeBody[models.ProgressUpdate](t, resp)

	// URL отдается с публичной базой, локально обрезаем до пути.
	path := update.ImageURL[len("http://localhost:8080"):]
	resp = st.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Метаданные бакета не раздаются.
	resp = st.do(t, http.MethodGet, "/files/progress-photos.bucket.json", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
