package classifier

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/jo-hoe/wheatscan/internal/imagesource"
)

const (
	DefaultFieldName = "file"

	mimeJPEG   = "image/jpeg"
	mimePNG    = "image/png"
	mimeBinary = "application/octet-stream"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// ContentTypeFor maps a file extension, without the dot, to the content type
// sent with the image part.
func ContentTypeFor(extension string) string {
	switch strings.ToLower(extension) {
	case "jpg", "jpeg":
		return mimeJPEG
	case "png":
		return mimePNG
	default:
		return mimeBinary
	}
}

// UploadRequest is built once per confirmed image and never modified.
type UploadRequest struct {
	asset       *imagesource.ImageAsset
	contentType string
	fieldName   string
}

func NewUploadRequest(asset *imagesource.ImageAsset, fieldName string) (*UploadRequest, error) {
	if asset == nil {
		return nil, imagesource.ErrNoImage
	}
	if fieldName == "" {
		fieldName = DefaultFieldName
	}
	return &UploadRequest{
		asset:       asset,
		contentType: ContentTypeFor(asset.Extension()),
		fieldName:   fieldName,
	}, nil
}

func (r *UploadRequest) ContentType() string { return r.contentType }

func (r *UploadRequest) FieldName() string { return r.fieldName }

func (r *UploadRequest) Asset() *imagesource.ImageAsset { return r.asset }

// encode writes the image as the single part of a multipart/form-data body
// and returns the body together with its Content-Type header.
func (r *UploadRequest) encode() (*bytes.Buffer, string, error) {
	src, err := r.asset.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image %s: %w", r.asset.Name, err)
	}
	defer func() {
		_ = src.Close()
	}()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(r.fieldName), quoteEscaper.Replace(r.asset.Name)))
	header.Set("Content-Type", r.contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart section: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("failed to read image %s: %w", r.asset.Name, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
