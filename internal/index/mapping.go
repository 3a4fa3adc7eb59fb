package index

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildMapping declares the document shape: analyzed content stored
// verbatim for fragment extraction, plus keyword path/dir/ext fields used
// for grouping and filtering.
func buildMapping() mapping.IndexMapping {
	content := bleve.NewTextFieldMapping()
	content.Store = true
	content.IncludeTermVectors = false

	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	kw.Store = true
	kw.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("path", kw)
	doc.AddFieldMappingsAt("dir", kw)
	doc.AddFieldMappingsAt("ext", kw)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}
