package filestore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if fs.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.DataDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestSaveFile проверяет сохранение файла на диск.
func TestSaveFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("Hello, World! Тестовые данные для проверки.")
	reader := bytes.NewReader(content)

	result, err := fs.SaveFile(reader, "test-report.pdf", 42)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	// Проверяем размер
	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}

	// Проверяем, что файл существует на диске
	if _, err := os.Stat(result.FullPath); os.IsNotExist(err) {
		t.Error("файл не найден на диске")
	}

	// Проверяем формат имени файла
	if !strings.Contains(result.StoragePath, "test-report") {
		t.Errorf("имя файла должно содержать оригинальное имя: %s", result.StoragePath)
	}
	if !strings.Contains(result.StoragePath, "_42_") {
		t.Errorf("имя файла должно содержать идентификатор владельца: %s", result.StoragePath)
	}
	if !strings.HasSuffix(result.StoragePath, ".pdf") {
		t.Errorf("имя файла должно сохранять расширение: %s", result.StoragePath)
	}

	// Проверяем содержимое
	data, err := os.ReadFile(result.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения файла: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}
}

// TestSaveFile_NoExtension проверяет сохранение файла без расширения.
func TestSaveFile_NoExtension(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	result, err := fs.SaveFile(bytes.NewReader([]byte("data")), "README", 1)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != 4 {
		t.Errorf("размер: ожидалось 4, получено %d", result.Size)
	}
}

// TestSaveFile_NoTmpFile проверяет, что temp файл удалён после сохранения.
func TestSaveFile_NoTmpFile(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	result, err := fs.SaveFile(bytes.NewReader([]byte("data")), "file.txt", 1)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	tmpPath := result.FullPath + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("временный файл не должен существовать")
	}
}

// TestSaveFile_UniqueNames проверяет, что параллельные загрузки одного
// имени не перезаписывают друг друга.
func TestSaveFile_UniqueNames(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	first, err := fs.SaveFile(bytes.NewReader([]byte("первый")), "same.txt", 7)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	second, err := fs.SaveFile(bytes.NewReader([]byte("второй")), "same.txt", 7)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if first.StoragePath == second.StoragePath {
		t.Errorf("имена должны быть уникальными: %s", first.StoragePath)
	}

	data, err := os.ReadFile(first.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения файла: %v", err)
	}
	if string(data) != "первый" {
		t.Error("первый файл перезаписан второй загрузкой")
	}
}

// TestReadFile проверяет чтение файла.
func TestReadFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("read test data")
	result, err := fs.SaveFile(bytes.NewReader(content), "read-test.txt", 1)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	// Чтение
	f, err := fs.ReadFile(result.StoragePath)
	if err != nil {
		t.Fatalf("ошибка открытия для чтения: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}

	if !bytes.Equal(data, content) {
		t.Error("прочитанные данные не совпадают с записанными")
	}
}

// TestReadFile_NotFound проверяет ошибку при чтении несуществующего файла.
func TestReadFile_NotFound(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	_, err = fs.ReadFile("nonexistent.txt")
	if err == nil {
		t.Error("ожидалась ошибка для несуществующего файла")
	}
}

// TestDeleteFile проверяет удаление файла.
func TestDeleteFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	result, err := fs.SaveFile(bytes.NewReader([]byte("delete me")), "delete.txt", 1)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	// Удаление
	if err := fs.DeleteFile(result.StoragePath); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}

	// Проверяем, что файл удалён
	if fs.FileExists(result.StoragePath) {
		t.Error("файл должен быть удалён")
	}
}

// TestDeleteFile_NotFound проверяет, что удаление несуществующего файла не ошибка.
func TestDeleteFile_NotFound(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if err := fs.DeleteFile("nonexistent.txt"); err != nil {
		t.Errorf("удаление несуществующего файла не должно быть ошибкой: %v", err)
	}
}

// TestGenerateStorageName проверяет генерацию имени файла.
func TestGenerateStorageName(t *testing.T) {
	name := generateStorageName("My Report.pdf", 42)

	if !strings.HasSuffix(name, ".pdf") {
		t.Errorf("должно сохраняться расширение .pdf: %s", name)
	}
	if !strings.Contains(name, "_42_") {
		t.Errorf("должно содержать идентификатор владельца: %s", name)
	}
	// Имя файла не должно содержать пробелы
	if strings.Contains(name, " ") {
		t.Errorf("не должно содержать пробелов: %s", name)
	}
}

// TestGenerateStorageName_PathTraversal проверяет, что компоненты пути
// из оригинального имени не попадают в имя хранения.
func TestGenerateStorageName_PathTraversal(t *testing.T) {
	name := generateStorageName("../../etc/passwd", 1)

	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		t.Errorf("имя хранения не должно содержать компоненты пути: %s", name)
	}
}

// TestSanitize проверяет очистку строк для имени файла.
func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"hello world", "helloworld"},
		{"test-file_01", "test-file_01"},
		{"file@#$%", "file"},
		{"", "file"}, // пустая строка → "file"
		{"тест", "тест"},
	}

	for _, tt := range tests {
		result := sanitize(tt.input)
		if result != tt.expected {
			t.Errorf("sanitize(%q): ожидалось %q, получено %q", tt.input, tt.expected, result)
		}
	}
}

// TestFullPath проверяет формирование полного пути.
func TestFullPath(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	fullPath := fs.FullPath("test.txt")
	expected := filepath.Join(fs.DataDir(), "test.txt")

	if fullPath != expected {
		t.Errorf("ожидалось %s, получено %s", expected, fullPath)
	}
}
