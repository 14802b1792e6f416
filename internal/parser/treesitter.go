package parser

import (
	"context"
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// declSpec describes how one grammar node kind becomes a symbol.
type declSpec struct {
	kind      doctree.Kind
	nameField string
	container bool // Functions declared inside become methods
}

// codeGrammar is the declaration table for one language.
type codeGrammar struct {
	language *tree_sitter.Language
	decls    map[string]declSpec
	// Wrapper node kinds whose first line belongs to the wrapped declaration.
	wrappers map[string]bool
	// Group wrappers count only when they hold a single declaration, as a
	// Go type or const declaration without parentheses.
	groups map[string]bool
	// Sibling kinds directly above a declaration that belong to its header:
	// doc comments and attributes.
	leading map[string]bool
}

var (
	goGrammar = codeGrammar{
		decls: map[string]declSpec{
			"function_declaration": {kind: doctree.KindFunction, nameField: "name"},
			"method_declaration":   {kind: doctree.KindMethod, nameField: "name"},
			"type_spec":            {kind: doctree.KindType, nameField: "name"},
			"type_alias":           {kind: doctree.KindType, nameField: "name"},
			"const_spec":           {kind: doctree.KindConstant, nameField: "name"},
			"var_spec":             {kind: doctree.KindVariable, nameField: "name"},
		},
		groups:  map[string]bool{"type_declaration": true, "const_declaration": true, "var_declaration": true},
		leading: map[string]bool{"comment": true},
	}
	pythonGrammar = codeGrammar{
		decls: map[string]declSpec{
			"class_definition":    {kind: doctree.KindClass, nameField: "name", container: true},
			"function_definition": {kind: doctree.KindFunction, nameField: "name"},
		},
		wrappers: map[string]bool{"decorated_definition": true},
		leading:  map[string]bool{"comment": true},
	}
	rustGrammar = codeGrammar{
		decls: map[string]declSpec{
			"mod_item":      {kind: doctree.KindModule, nameField: "name"},
			"struct_item":   {kind: doctree.KindStruct, nameField: "name"},
			"enum_item":     {kind: doctree.KindEnum, nameField: "name"},
			"trait_item":    {kind: doctree.KindInterface, nameField: "name", container: true},
			"impl_item":     {kind: doctree.KindClass, nameField: "type", container: true},
			"function_item": {kind: doctree.KindFunction, nameField: "name"},
			"const_item":    {kind: doctree.KindConstant, nameField: "name"},
			"static_item":   {kind: doctree.KindVariable, nameField: "name"},
			"type_item":     {kind: doctree.KindType, nameField: "name"},
		},
		leading: map[string]bool{"line_comment": true, "block_comment": true, "attribute_item": true},
	}
	typescriptGrammar = codeGrammar{
		decls: map[string]declSpec{
			"internal_module":            {kind: doctree.KindModule, nameField: "name"},
			"class_declaration":          {kind: doctree.KindClass, nameField: "name", container: true},
			"abstract_class_declaration": {kind: doctree.KindClass, nameField: "name", container: true},
			"interface_declaration":      {kind: doctree.KindInterface, nameField: "name", container: true},
			"enum_declaration":           {kind: doctree.KindEnum, nameField: "name"},
			"type_alias_declaration":     {kind: doctree.KindType, nameField: "name"},
			"function_declaration":       {kind: doctree.KindFunction, nameField: "name"},
			"method_definition":          {kind: doctree.KindMethod, nameField: "name"},
		},
		wrappers: map[string]bool{"export_statement": true},
		leading:  map[string]bool{"comment": true},
	}
)

func init() {
	goGrammar.language = tree_sitter.NewLanguage(tree_sitter_go.Language())
	pythonGrammar.language = tree_sitter.NewLanguage(tree_sitter_python.Language())
	rustGrammar.language = tree_sitter.NewLanguage(tree_sitter_rust.Language())
	typescriptGrammar.language = tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
}

// CodeSource reports declarations of a programming language via tree-sitter.
// The grammar's native nesting is flattened into leveled symbols.
type CodeSource struct {
	docType string
	grammar *codeGrammar
}

// NewCodeSource returns a source for a code document type.
func NewCodeSource(docType string) (*CodeSource, error) {
	var g *codeGrammar
	switch docType {
	case TypeGo:
		g = &goGrammar
	case TypePython:
		g = &pythonGrammar
	case TypeRust:
		g = &rustGrammar
	case TypeTypeScript:
		g = &typescriptGrammar
	default:
		return nil, fmt.Errorf("no tree-sitter grammar for %q", docType)
	}
	return &CodeSource{docType: docType, grammar: g}, nil
}

// CodeTypes lists the document types NewCodeSource accepts.
func CodeTypes() []string {
	return []string{TypeGo, TypePython, TypeRust, TypeTypeScript}
}

// Symbols parses the snapshot and returns its declarations in document order.
func (s *CodeSource) Symbols(ctx context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(s.grammar.language); err != nil {
		return nil, fmt.Errorf("set language %s: %w", s.docType, err)
	}

	src := []byte(snap.Text)
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter returned nil tree for %s", snap.URI)
	}
	defer tree.Close()

	nested := s.grammar.collect(tree.RootNode(), src, false)
	return doctree.Flatten(nested), nil
}

// collect gathers the declarations under n, nesting those found inside a
// declaration beneath it.
func (g *codeGrammar) collect(n *tree_sitter.Node, src []byte, inContainer bool) []doctree.NestedSymbol {
	var out []doctree.NestedSymbol
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		spec, ok := g.decls[child.Kind()]
		if !ok {
			out = append(out, g.collect(child, src, inContainer)...)
			continue
		}
		sym := doctree.NestedSymbol{Symbol: g.symbol(child, spec, src, inContainer)}
		sym.Children = g.collect(child, src, spec.container)
		out = append(out, sym)
	}
	return out
}

func (g *codeGrammar) symbol(n *tree_sitter.Node, spec declSpec, src []byte, inContainer bool) doctree.Symbol {
	kind := spec.kind
	if kind == doctree.KindFunction && inContainer {
		kind = doctree.KindMethod
	}
	if kind == doctree.KindType {
		kind = typeSpecKind(n)
	}

	name := "<anonymous>"
	if nameNode := n.ChildByFieldName(spec.nameField); nameNode != nil {
		name = nameNode.Utf8Text(src)
	}

	r := doctree.Line(int(g.headerStart(n)))
	return doctree.Symbol{Name: name, Kind: kind, Header: &r}
}

// headerStart is the first row of a declaration including its wrapper and
// the doc comments or attributes directly above it.
func (g *codeGrammar) headerStart(n *tree_sitter.Node) uint {
	anchor := n
	if p := n.Parent(); p != nil {
		if g.wrappers[p.Kind()] || (g.groups[p.Kind()] && p.NamedChildCount() == 1) {
			anchor = p
		}
	}

	start := anchor.StartPosition().Row
	for prev := anchor.PrevNamedSibling(); prev != nil && g.leading[prev.Kind()]; prev = prev.PrevNamedSibling() {
		if lastRow(prev)+1 != start {
			break
		}
		// A comment trailing the previous statement on its line stays there.
		if before := prev.PrevNamedSibling(); before != nil && !g.leading[before.Kind()] &&
			lastRow(before) == prev.StartPosition().Row {
			break
		}
		start = prev.StartPosition().Row
	}
	return start
}

// lastRow is the row of n's last character. Rust doc comments end with
// their newline, at column 0 of the next row.
func lastRow(n *tree_sitter.Node) uint {
	end := n.EndPosition()
	if end.Column == 0 && end.Row > n.StartPosition().Row {
		return end.Row - 1
	}
	return end.Row
}

// typeSpecKind refines a Go type_spec by its underlying type.
func typeSpecKind(n *tree_sitter.Node) doctree.Kind {
	t := n.ChildByFieldName("type")
	if t == nil {
		return doctree.KindType
	}
	switch t.Kind() {
	case "struct_type":
		return doctree.KindStruct
	case "interface_type":
		return doctree.KindInterface
	}
	return doctree.KindType
}
