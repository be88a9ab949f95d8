package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// decodeBody разбирает тело ответа ошибки.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("некорректный JSON в теле ответа: %v", err)
	}
	return body
}

// TestWriteError проверяет формат тела ответа ошибки.
func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/42", nil)

	WriteError(rec, req, http.StatusNotFound, TypeNotFound, "Файл не найден")

	if rec.Code != http.StatusNotFound {
		t.Errorf("статус = %d, ожидался 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, ожидался application/json", ct)
	}

	body := decodeBody(t, rec)
	if body["statusCode"] != float64(404) {
		t.Errorf("statusCode = %v, ожидалось 404", body["statusCode"])
	}
	if body["path"] != "/api/v1/files/42" {
		t.Errorf("path = %v", body["path"])
	}
	if body["method"] != "GET" {
		t.Errorf("method = %v, ожидался GET", body["method"])
	}
	if body["errorType"] != TypeNotFound {
		t.Errorf("errorType = %v, ожидался %s", body["errorType"], TypeNotFound)
	}
	if body["message"] != "Файл не найден" {
		t.Errorf("message = %v", body["message"])
	}

	// timestamp — валидный RFC3339
	ts, ok := body["timestamp"].(string)
	if !ok {
		t.Fatal("timestamp отсутствует")
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp не в формате RFC3339: %v", err)
	}
}

// TestValidationError_MultipleMessages проверяет объединение сообщений валидации.
func TestValidationError_MultipleMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", nil)

	ValidationError(rec, req, "Поле 'file' обязательно", "title не длиннее 255 символов")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400", rec.Code)
	}
	body := decodeBody(t, rec)
	want := "Поле 'file' обязательно; title не длиннее 255 символов"
	if body["message"] != want {
		t.Errorf("message = %v, ожидалось %q", body["message"], want)
	}
}

// TestConstructors проверяет соответствие конструкторов и статус-кодов.
func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		write     func(w http.ResponseWriter, r *http.Request)
		status    int
		errorType string
	}{
		{"Unauthorized", func(w http.ResponseWriter, r *http.Request) { Unauthorized(w, r, "m") }, 401, TypeUnauthorized},
		{"Forbidden", func(w http.ResponseWriter, r *http.Request) { Forbidden(w, r, "m") }, 403, TypeForbidden},
		{"NotFound", func(w http.ResponseWriter, r *http.Request) { NotFound(w, r, "m") }, 404, TypeNotFound},
		{"StorageError", func(w http.ResponseWriter, r *http.Request) { StorageError(w, r, "m") }, 500, TypeStorageError},
		{"PersistenceError", func(w http.ResponseWriter, r *http.Request) { PersistenceError(w, r, "m") }, 500, TypePersistenceError},
		{"InternalError", func(w http.ResponseWriter, r *http.Request) { InternalError(w, r, "m") }, 500, TypeInternalError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		tt.write(rec, req)

		if rec.Code != tt.status {
			t.Errorf("%s: статус = %d, ожидался %d", tt.name, rec.Code, tt.status)
		}
		body := decodeBody(t, rec)
		if body["errorType"] != tt.errorType {
			t.Errorf("%s: errorType = %v, ожидался %s", tt.name, body["errorType"], tt.errorType)
		}
	}
}
