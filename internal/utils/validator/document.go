// internal/utils/validator/document.go
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/review-automation/pkg/logger"
)

// DocumentValidator 文档预检验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
	MaxPageCount int                 // PDF最大页数, 0 表示不限制
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
	Pages     int    `json:"pages"`
}

// DefaultConfig 默认配置
func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 50 * 1024 * 1024, // 50MB
		AllowedTypes: map[string][]string{
			".pdf": {"application/pdf"},
		},
		MaxPageCount: 1000,
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{
		logger: log,
		config: config,
	}
}

// Preflight rejects a document that the review application could not
// accept. The returned error joins every failed check.
func (v *DocumentValidator) Preflight(path string) error {
	result, err := v.ValidateFile(path)
	if err != nil {
		return err
	}
	if result.IsValid {
		v.logger.Debug("Preflight passed",
			logger.String("file", result.FileInfo.Filename),
			logger.Int("pages", result.FileInfo.Pages),
			logger.String("sha256", result.FileInfo.Hash),
		)
		return nil
	}

	errs := make([]error, len(result.Errors))
	for i, e := range result.Errors {
		errs[i] = e
	}
	return fmt.Errorf("preflight failed for %s: %w", result.FileInfo.Filename, errors.Join(errs...))
}

// ValidateFile 验证单个文件
func (v *DocumentValidator) ValidateFile(path string) (*ValidationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  filepath.Base(path),
			Size:      stat.Size(),
			Extension: strings.ToLower(filepath.Ext(path)),
		},
	}

	// 计算文件哈希
	hash, err := v.calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	// 基本验证
	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
	}

	// MIME类型验证
	mimeType, err := v.detectMimeType(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mimeType

	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	if result.FileInfo.Extension == ".pdf" {
		pages, errs := v.validatePDF(f, stat.Size())
		result.FileInfo.Pages = pages
		if len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	return result, nil
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errs []ValidationError

	if fileInfo.Size == 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
		})
	}

	// 检查文件大小
	if v.config.MaxFileSize > 0 && fileInfo.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	// 检查文件扩展名
	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %s is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}

	return errs
}

// MIME类型验证
func (v *DocumentValidator) validateMimeType(fileInfo FileInfo) []ValidationError {
	allowedMimes, ok := v.config.AllowedTypes[fileInfo.Extension]
	if !ok {
		return []ValidationError{{
			Code:    "INVALID_FILE_TYPE",
			Message: "File type not allowed",
			Field:   "mimeType",
		}}
	}

	for _, mime := range allowedMimes {
		if mime == fileInfo.MimeType {
			return nil
		}
	}
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", fileInfo.MimeType, fileInfo.Extension),
		Field:   "mimeType",
	}}
}

// 检测MIME类型
func (v *DocumentValidator) detectMimeType(file io.ReadSeeker) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}
	return http.DetectContentType(buffer[:n]), nil
}

// 计算文件哈希
func (v *DocumentValidator) calculateHash(file io.ReadSeeker) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// PDF特定验证: 结构可解析, 未加密, 页数在范围内
func (v *DocumentValidator) validatePDF(file io.ReaderAt, size int64) (int, []ValidationError) {
	reader, err := pdf.NewReader(file, size)
	if err != nil {
		code := "CORRUPT_PDF"
		if strings.Contains(err.Error(), "encrypted") || strings.Contains(err.Error(), "password") {
			code = "ENCRYPTED_PDF"
		}
		return 0, []ValidationError{{
			Code:    code,
			Message: fmt.Sprintf("Failed to read PDF: %v", err),
		}}
	}

	pages := reader.NumPage()
	switch {
	case pages < 1:
		return pages, []ValidationError{{
			Code:    "EMPTY_PDF",
			Message: "PDF has no pages",
			Field:   "pages",
		}}
	case v.config.MaxPageCount > 0 && pages > v.config.MaxPageCount:
		return pages, []ValidationError{{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("PDF has %d pages, maximum is %d", pages, v.config.MaxPageCount),
			Field:   "pages",
		}}
	}
	return pages, nil
}
