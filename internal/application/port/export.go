package port

import (
	"io"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// RequestExporter renders requests and their steps into a downloadable report
type RequestExporter interface {
	ContentType() string
	FileExtension() string
	Export(w io.Writer, requests []*entity.ApprovalRequest) error
}
