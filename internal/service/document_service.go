package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"

	"paperflow/internal/domain"
	"paperflow/internal/service/s3"
)

// DocumentService выполняет атомарную замену пары документов работы
// в объектном хранилище с компенсацией при частичном сбое
type DocumentService struct {
	storage s3.Storage
}

func NewDocumentService(storage s3.Storage) *DocumentService {
	return &DocumentService{storage: storage}
}

// ReplaceDocuments загружает QP и Scheme по детерминированному пути работы.
// Для новой подачи обязательны оба файла, при редактировании пропущенный
// файл сохраняет прежнюю ссылку и тип. Загрузка идет строго последовательно
// (QP, затем Scheme): компенсации нужен определенный порядок, чтобы знать,
// что откатывать. При сбое Scheme удаляется только QP, загруженный в этом
// же вызове - существующие объекты не трогаются.
//
// Перезапись живого ключа (тот же путь, на который ссылается текущая
// запись) не откатывается: прежние байты уже потеряны, а удаление ключа
// оставило бы запись со ссылкой в никуда.
//
// Возвращаемая функция компенсации удаляет объекты, загруженные в этом
// вызове; вызывающая сторона обязана выполнить её, если не смогла
// сохранить запись о работе.
func (s *DocumentService) ReplaceDocuments(
	ctx context.Context,
	paper *domain.ExamPaper,
	qp *domain.DocumentUpload,
	scheme *domain.DocumentUpload,
) (domain.DocumentPair, func(), error) {
	noop := func() {}

	isNew := paper.QPFileURL == "" && paper.SchemeFileURL == ""
	if isNew && (qp == nil || scheme == nil) {
		return domain.DocumentPair{}, noop, domain.NewValidationError(
			"a new submission requires both QP and Scheme documents")
	}

	// Существующая пара переносится для файлов, не затронутых этим вызовом
	pair := domain.DocumentPair{
		QPFileURL:      paper.QPFileURL,
		QPMimeType:     paper.QPMimeType,
		SchemeFileURL:  paper.SchemeFileURL,
		SchemeMimeType: paper.SchemeMimeType,
	}

	folder := paper.StorageFolder()
	uploaded := make([]string, 0, 2)
	cleanup := func() {
		for _, key := range uploaded {
			if err := s.storage.DeleteObject(context.Background(), key); err != nil {
				log.Printf("warning: failed to roll back uploaded object %s: %v", key, err)
			}
		}
	}

	if qp != nil {
		key, err := documentKey(folder, domain.DocumentQP, qp.Filename)
		if err != nil {
			return domain.DocumentPair{}, noop, err
		}
		if err := s.storage.UploadObject(ctx, key, qp.Data, qp.ContentType); err != nil {
			return domain.DocumentPair{}, noop, domain.NewStorageUploadError(domain.DocumentQP, err)
		}
		if key != liveKey(folder, domain.DocumentQP, paper.QPFileURL) {
			uploaded = append(uploaded, key)
		}
		pair.QPFileURL = s.storage.PublicURL(key)
		pair.QPMimeType = qp.ContentType
	}

	if scheme != nil {
		key, err := documentKey(folder, domain.DocumentScheme, scheme.Filename)
		if err != nil {
			cleanup()
			return domain.DocumentPair{}, noop, err
		}
		if err := s.storage.UploadObject(ctx, key, scheme.Data, scheme.ContentType); err != nil {
			// Откатываем QP, загруженный в этом вызове
			cleanup()
			return domain.DocumentPair{}, noop, domain.NewStorageUploadError(domain.DocumentScheme, err)
		}
		if key != liveKey(folder, domain.DocumentScheme, paper.SchemeFileURL) {
			uploaded = append(uploaded, key)
		}
		pair.SchemeFileURL = s.storage.PublicURL(key)
		pair.SchemeMimeType = scheme.ContentType
	}

	return pair, cleanup, nil
}

// OpenDocument открывает документ работы на чтение из хранилища
func (s *DocumentService) OpenDocument(ctx context.Context, paper *domain.ExamPaper, kind domain.DocumentKind) (s3.Object, error) {
	fileURL := paper.QPFileURL
	if kind == domain.DocumentScheme {
		fileURL = paper.SchemeFileURL
	}
	if fileURL == "" {
		return nil, domain.NewNotFound(paper.UUID.String())
	}

	key := fmt.Sprintf("%s/%s%s", paper.StorageFolder(), kind, path.Ext(fileURL))
	obj, err := s.storage.GetObject(ctx, key)
	if err != nil {
		return nil, domain.NewTransientError(err)
	}
	return obj, nil
}

// liveKey возвращает ключ объекта, на который ссылается текущая запись,
// или пустую строку, если документа еще нет
func liveKey(folder string, kind domain.DocumentKind, fileURL string) string {
	if fileURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s%s", folder, kind, path.Ext(fileURL))
}

// documentKey строит ключ объекта <папка>/<вид>.<расширение>
func documentKey(folder string, kind domain.DocumentKind, filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		return "", domain.NewValidationError("%s file %q has no extension", kind, filename)
	}
	return fmt.Sprintf("%s/%s%s", folder, kind, ext), nil
}

// DocumentFilename возвращает имя файла для выдачи при скачивании
func DocumentFilename(paper *domain.ExamPaper, kind domain.DocumentKind) string {
	fileURL := paper.QPFileURL
	if kind == domain.DocumentScheme {
		fileURL = paper.SchemeFileURL
	}
	name := fmt.Sprintf("%s_%s%s", paper.SubjectCode, kind, path.Ext(fileURL))
	return url.PathEscape(name)
}
