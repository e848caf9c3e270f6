// photos.go — HTTP-обработчики записей о фотографиях.
// Загрузка, листинг, чтение, выдача содержимого, редактирование,
// повторное тегирование, удаление.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/jspotlight/internal/api/errors"
	"github.com/bigkaa/jspotlight/internal/api/middleware"
	"github.com/bigkaa/jspotlight/internal/domain/model"
	"github.com/bigkaa/jspotlight/internal/service"
)

// multipartMemory — объём multipart-формы в памяти, остальное во временных файлах.
const multipartMemory = 32 << 20

// maxUpdateBody — ограничение размера тела запроса редактирования.
const maxUpdateBody = 64 << 10

// PhotosHandler — обработчик endpoints /photos.
type PhotosHandler struct {
	uploads       *service.UploadService
	photos        *service.PhotoService
	maxUploadSize int64
	logger        *slog.Logger
}

// NewPhotosHandler создаёт обработчик записей.
// maxUploadSize — предел тела запроса загрузки в байтах (0 — без предела).
func NewPhotosHandler(
	uploads *service.UploadService,
	photos *service.PhotoService,
	maxUploadSize int64,
	logger *slog.Logger,
) *PhotosHandler {
	return &PhotosHandler{
		uploads:       uploads,
		photos:        photos,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "photos_handler")),
	}
}

// Upload обрабатывает POST /photos и POST /photos/upload.
//
// Multipart form: file (обязательно), fileName и creationDate (опционально).
// Сырое тело (Content-Type image/* или application/octet-stream):
// fileName и creationDate в query-параметрах.
func (h *PhotosHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var params service.UploadParams
	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isTooLarge(err) {
				apierrors.FileTooLarge(w, h.tooLargeMessage())
				return
			}
			apierrors.ValidationError(w, "Ошибка парсинга multipart: "+err.Error())
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("file")
		if err != nil {
			apierrors.ValidationError(w, "Поле 'file' обязательно")
			return
		}
		defer file.Close()

		params = service.UploadParams{
			Reader:      file,
			FileName:    firstNonEmpty(r.FormValue("fileName"), header.Filename),
			ContentType: header.Header.Get("Content-Type"),
		}
		if params.CreationDate, err = model.ParseCreationDate(r.FormValue("creationDate")); err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}

	case strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream":
		var err error
		params = service.UploadParams{
			Reader:      r.Body,
			FileName:    firstNonEmpty(r.URL.Query().Get("fileName"), defaultFileName(mediaType)),
			ContentType: mediaType,
		}
		if params.CreationDate, err = model.ParseCreationDate(r.URL.Query().Get("creationDate")); err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}

	default:
		apierrors.ValidationError(w, "Ожидается multipart/form-data или изображение в теле запроса")
		return
	}

	params.UploadedBy = middleware.SubjectFromContext(r.Context())

	photo, err := h.uploads.Upload(r.Context(), params)
	if err != nil {
		switch {
		case isTooLarge(err):
			apierrors.FileTooLarge(w, h.tooLargeMessage())
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrStorageFailed):
			apierrors.StorageFailed(w, "Не удалось сохранить изображение")
		default:
			h.logger.Error("Ошибка загрузки", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Не удалось создать запись")
		}
		return
	}

	writeJSON(w, http.StatusOK, photo)
}

// List обрабатывает GET /photos.
// Параметры: tag, limit, offset. Без limit возвращаются все записи.
// Общее число записей — в заголовке X-Total-Count.
func (h *PhotosHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		apierrors.ValidationError(w, "Параметр limit должен быть целым числом")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		apierrors.ValidationError(w, "Параметр offset должен быть целым числом")
		return
	}

	res, err := h.photos.List(r.Context(), service.ListParams{
		Tag:    q.Get("tag"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(res.Total))
	writeJSON(w, http.StatusOK, res.Items)
}

// Get обрабатывает GET /photos/{id}.
func (h *PhotosHandler) Get(w http.ResponseWriter, r *http.Request) {
	photo, err := h.photos.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

// File обрабатывает GET /photos/{id}/file — выдаёт сохранённое содержимое.
func (h *PhotosHandler) File(w http.ResponseWriter, r *http.Request) {
	photo, rc, err := h.photos.OpenFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer rc.Close()

	contentType := photo.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(photo.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": photo.FileName}))
	if photo.Checksum != "" {
		w.Header().Set("ETag", `"`+photo.Checksum+`"`)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Ошибка выдачи содержимого",
			slog.String("id", photo.ID),
			slog.String("error", err.Error()),
		)
	}
}

// updateRequest — тело PUT /photos/{id}. Остальные поля записи игнорируются.
type updateRequest struct {
	FileName     *string `json:"fileName"`
	CreationDate *string `json:"creationDate"`
}

// Update обрабатывает PUT /photos/{id}.
// Редактируются только fileName и creationDate.
func (h *PhotosHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	upd := model.PhotoUpdate{FileName: req.FileName}
	if req.CreationDate != nil {
		d, err := model.ParseCreationDate(*req.CreationDate)
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		upd.CreationDate = &d
	}

	photo, err := h.photos.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

// Retag обрабатывает POST /photos/{id}/tags — повторное тегирование.
func (h *PhotosHandler) Retag(w http.ResponseWriter, r *http.Request) {
	photo, err := h.photos.Retag(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

// Delete обрабатывает DELETE /photos/{id}. 204 или 404.
func (h *PhotosHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.photos.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func (h *PhotosHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Запись не найдена")
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	default:
		h.logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

func (h *PhotosHandler) tooLargeMessage() string {
	return fmt.Sprintf("Размер изображения превышает %d байт", h.maxUploadSize)
}

// isTooLarge сообщает, что тело запроса превысило MaxBytesReader.
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// queryInt разбирает необязательный целочисленный параметр.
func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// defaultFileName — имя для загрузки сырым телом без fileName.
func defaultFileName(mediaType string) string {
	ts := time.Now().UTC().Format("20060102-150405")
	switch mediaType {
	case "image/jpeg":
		return "photo-" + ts + ".jpg"
	case "image/png":
		return "photo-" + ts + ".png"
	case "image/gif":
		return "photo-" + ts + ".gif"
	case "image/webp":
		return "photo-" + ts + ".webp"
	default:
		return "photo-" + ts
	}
}
