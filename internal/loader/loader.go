// Package loader reads upstream paper files and writes compiled documents.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"arxiv2mathml/internal/logger"
	"arxiv2mathml/internal/types"
)

// Encoding names a detected text encoding
type Encoding string

const (
	EncodingUTF8    Encoding = "UTF-8"
	EncodingUTF8BOM Encoding = "UTF-8-BOM"
	EncodingUTF16LE Encoding = "UTF-16LE"
	EncodingUTF16BE Encoding = "UTF-16BE"
	EncodingGBK     Encoding = "GBK"
	EncodingUnknown Encoding = "UNKNOWN"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding guesses the encoding of data from its BOM, UTF-8 validity and,
// failing both, a GBK decode.
func DetectEncoding(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE
	case utf8.Valid(data):
		return EncodingUTF8
	case isValidGBK(data):
		return EncodingGBK
	default:
		return EncodingUnknown
	}
}

func isValidGBK(data []byte) bool {
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return false
	}
	// The decoder substitutes U+FFFD for invalid sequences instead of failing.
	return utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError)
}

// ToUTF8 converts data to UTF-8 according to its detected encoding
func ToUTF8(data []byte) ([]byte, Encoding, error) {
	enc := DetectEncoding(data)
	var (
		out []byte
		err error
	)
	switch enc {
	case EncodingUTF8:
		out = data
	case EncodingUTF8BOM:
		out = data[len(bomUTF8):]
	case EncodingUTF16LE:
		out, err = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case EncodingUTF16BE:
		out, err = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case EncodingGBK:
		out, err = simplifiedchinese.GBK.NewDecoder().Bytes(data)
	default:
		return nil, enc, fmt.Errorf("unsupported text encoding")
	}
	if err != nil {
		return nil, enc, fmt.Errorf("failed to decode from %s: %w", enc, err)
	}
	return out, enc, nil
}

// PaperID derives a paper identifier from a file name: "1105.2282.json" → "1105.2282"
func PaperID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

// ReadPaper reads a paper JSON file. A missing arxiv_id is taken from the file name.
func ReadPaper(path string) (*types.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "paper file not found", path, err)
		}
		return nil, types.NewAppErrorWithDetails(types.ErrInternal, "failed to read paper file", path, err)
	}

	text, enc, err := ToUTF8(data)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "failed to decode paper file", path, err)
	}
	if enc != EncodingUTF8 {
		logger.Debug("converted paper file to UTF-8", logger.String("path", path), logger.String("encoding", string(enc)))
	}

	paper := &types.Paper{}
	if err := json.Unmarshal(text, paper); err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid paper file", path, err)
	}
	if paper.ArxivID == "" {
		paper.ArxivID = PaperID(path)
	}
	return paper, nil
}

// ListPapers returns the *.json files directly inside dir, sorted by name
func ListPapers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "failed to read paper directory", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// WriteCompiled writes doc as indented JSON to dir/<id>.json and returns the path.
// The file is replaced atomically.
func WriteCompiled(dir, id string, doc *types.CompiledPaper) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrInternal, "failed to create output directory", dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to marshal compiled paper", err)
	}

	path := filepath.Join(dir, id+".json")
	tmp, err := os.CreateTemp(dir, "."+id+"-*.tmp")
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", types.NewAppError(types.ErrInternal, "failed to write compiled paper", err)
	}
	if err := tmp.Close(); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to write compiled paper", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to move compiled paper into place", err)
	}
	return path, nil
}
