package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// textExtensions are the file types picked up when walking a directory.
var textExtensions = []string{".txt", ".md", ".markdown", ".text"}

// LoadDocuments reads each path as a document. Directories are walked for
// text files. Files named explicitly are read regardless of extension.
func LoadDocuments(paths []string) ([]Document, error) {
	var docs []Document
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			doc, err := readDocument(path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !slices.Contains(textExtensions, strings.ToLower(filepath.Ext(p))) {
				return nil
			}
			doc, err := readDocument(p)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	}
	return docs, nil
}

func readDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Document{Source: path, Text: string(data)}, nil
}
