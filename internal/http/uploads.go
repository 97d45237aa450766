package http

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// handleUploadPhoto accepts a multipart image, stores it under the uploads
// directory, and returns a session id plus the stored filename. The filename
// is what later submissions carry as their photo reference.
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "photo too large or malformed upload"})
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No photo uploaded"})
		return
	}
	defer file.Close()

	if !isImageUpload(file, header) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Only image files are allowed"})
		return
	}

	if err := os.MkdirAll(s.uploadsDir, 0755); err != nil {
		slog.ErrorContext(r.Context(), "Failed to create uploads directory", "error", err, "dir", s.uploadsDir)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	filename := photoFilename(header.Filename)
	dst, err := os.OpenFile(filepath.Join(s.uploadsDir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create upload file", "error", err, "filename", filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		slog.ErrorContext(r.Context(), "Failed to store upload", "error", err, "filename", filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	slog.InfoContext(r.Context(), "Photo stored",
		"filename", filename,
		"size_bytes", header.Size)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": uuid.New().String(),
		"photoPath": filename,
	})
}

// isImageUpload sniffs the content rather than trusting the declared type.
func isImageUpload(file multipart.File, header *multipart.FileHeader) bool {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return false
	}

	if strings.HasPrefix(http.DetectContentType(buf[:n]), "image/") {
		return true
	}
	// DetectContentType does not know every image format; fall back to the
	// declared type for the remainder.
	return strings.HasPrefix(header.Header.Get("Content-Type"), "image/")
}

// photoFilename builds a collision-resistant name, keeping the original
// extension.
func photoFilename(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}

	var suffix uint32
	if err := binary.Read(rand.Reader, binary.BigEndian, &suffix); err != nil {
		suffix = uint32(time.Now().UnixNano())
	}
	return fmt.Sprintf("photo-%d-%d%s", time.Now().UnixMilli(), suffix, ext)
}
