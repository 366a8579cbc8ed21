package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/DataGeek404/micro-finance-app-sub001/utils"
)

var (
	ErrSurfaceUnavailable = errors.New("display surface is unavailable")
	ErrUnknownFormat      = errors.New("unknown report format")
)

type Format string

const (
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat defaults to html when s is empty.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatHTML, nil
	case FormatHTML, FormatCSV, FormatPDF, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/html; charset=utf-8"
	}
}

func (f Format) Extension() string {
	return "." + string(f)
}

// Artifact is an encoded document ready for a surface.
type Artifact struct {
	Name   string
	Format Format
	Body   []byte
}

func (a Artifact) Filename() string {
	name := utils.SanitizeSegment(strings.ReplaceAll(a.Name, "/", "_"))
	return name + a.Format.Extension()
}

// Encode renders doc in format. HTML tolerates an empty dataset; the exports do not.
func Encode(doc Document, format Format) (*Artifact, error) {
	var (
		body []byte
		err  error
	)
	switch format {
	case FormatHTML:
		body, err = RenderHTML(doc)
	case FormatCSV:
		body, err = EncodeCSV(doc)
	case FormatPDF:
		body, err = EncodePDF(doc)
	case FormatXLSX:
		body, err = EncodeXLSX(doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return &Artifact{Name: doc.Title, Format: format, Body: body}, nil
}

// Surface displays or stores an artifact and returns where it can be reached, if anywhere.
type Surface interface {
	Open(ctx context.Context, a Artifact) (string, error)
}

// ResponseSurface writes the artifact as the HTTP response body.
type ResponseSurface struct {
	Writer http.ResponseWriter
}

func (s ResponseSurface) Open(ctx context.Context, a Artifact) (string, error) {
	if s.Writer == nil {
		return "", ErrSurfaceUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	disposition := "attachment"
	if a.Format == FormatHTML {
		disposition = "inline"
	}
	h := s.Writer.Header()
	h.Set("Content-Type", a.Format.ContentType())
	h.Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, a.Filename()))
	h.Set("Content-Length", strconv.Itoa(len(a.Body)))
	s.Writer.WriteHeader(http.StatusOK)
	if _, err := s.Writer.Write(a.Body); err != nil {
		return "", fmt.Errorf("write response: %w", err)
	}
	return "", nil
}

type ObjectStore interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType string) error
	PublicURL(objectKey string) string
}

// StorageSurface uploads the artifact under Folder and returns its public URL.
type StorageSurface struct {
	Store  ObjectStore
	Folder string
}

func (s StorageSurface) Open(ctx context.Context, a Artifact) (string, error) {
	if s.Store == nil {
		return "", ErrSurfaceUnavailable
	}
	key := utils.NewObjectKey(s.Folder, a.Format.Extension())
	if err := s.Store.Upload(ctx, key, a.Body, a.Format.ContentType()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSurfaceUnavailable, err)
	}
	return s.Store.PublicURL(key), nil
}

// Export encodes doc and hands it to surface, honoring ctx between the two steps.
func Export(ctx context.Context, doc Document, format Format, surface Surface) (string, error) {
	if surface == nil {
		return "", ErrSurfaceUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	artifact, err := Encode(doc, format)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return surface.Open(ctx, *artifact)
}
