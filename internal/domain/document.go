package domain

// DocumentKind различает два документа работы
type DocumentKind string

const (
	DocumentQP     DocumentKind = "QP"
	DocumentScheme DocumentKind = "Scheme"
)

// ParseDocumentKind преобразует строку в вид документа
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch DocumentKind(s) {
	case DocumentQP, DocumentScheme:
		return DocumentKind(s), true
	default:
		return "", false
	}
}

// DocumentUpload представляет загружаемый документ
type DocumentUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DocumentPair - итоговые ссылки и типы обоих документов работы.
// Запись о работе никогда не ссылается на QP без соответствующего Scheme.
type DocumentPair struct {
	QPFileURL      string `json:"qp_file_url"`
	QPMimeType     string `json:"qp_mime_type"`
	SchemeFileURL  string `json:"scheme_file_url"`
	SchemeMimeType string `json:"scheme_mime_type"`
}
