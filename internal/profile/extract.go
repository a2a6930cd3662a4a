package profile

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

// MaxDocumentSize bounds accepted uploads.
const MaxDocumentSize = 10 << 20

// ExtractText returns the plain text of a .pdf, .docx, .txt or .md document.
func ExtractText(filename string, data []byte) (string, error) {
	if len(data) > MaxDocumentSize {
		return "", model.Invalid("file", "exceeds 10MB")
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", model.Invalid("file", "is not valid UTF-8 text")
		}
		return string(data), nil
	case ".pdf":
		return pdfText(data)
	case ".docx":
		return docxText(data)
	default:
		return "", model.Invalid("file", "only .pdf, .docx, .txt and .md documents are supported")
	}
}

// pdfText concatenates the text of every page, one line per page.
func pdfText(data []byte) (text string, err error) {
	// The reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", model.Invalid("file", "is not a readable PDF")
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", model.Invalid("file", "is not a readable PDF")
	}

	fonts := make(map[string]*pdf.Font)
	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", model.Invalid("file", fmt.Sprintf("page %d is unreadable", i))
		}
		if content = strings.TrimSpace(content); content != "" {
			lines = append(lines, content)
		}
	}
	if len(lines) == 0 {
		return "", model.Invalid("file", "contains no extractable text")
	}
	return strings.Join(lines, "\n"), nil
}

// docxText reads word/document.xml and joins each paragraph's runs into a
// line.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", model.Invalid("file", "is not a valid .docx archive")
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", model.Invalid("file", "has no document body")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open document body: %w", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, 4*MaxDocumentSize))
	var (
		lines  []string
		para   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", model.Invalid("file", "has a malformed document body")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(para.String()); line != "" {
					lines = append(lines, line)
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
