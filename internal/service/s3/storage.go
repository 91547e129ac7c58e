package s3

import (
	"context"
	"io"
)

// Object определяет интерфейс для объектов хранилища
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// object реализует интерфейс Object
type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем.
// Загрузка по существующему ключу перезаписывает объект - повторная
// подача работы переиспользует те же ключи.
type Storage interface {
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) (Object, error)
	DeleteObject(ctx context.Context, key string) error
	PublicURL(key string) string
}
