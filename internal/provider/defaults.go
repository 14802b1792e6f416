package provider

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// RegistryOptions configures DefaultRegistry.
type RegistryOptions struct {
	LSPServers []parser.LSPConfig
	Logger     *slog.Logger
}

// DefaultRegistry registers the built-in document types plus any configured
// language servers. A language server registered for a built-in type takes
// over as its source, with the built-in parser as fallback.
func DefaultRegistry(opts RegistryOptions) *Registry {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := NewRegistry()

	reg.Register(parser.TypeMarkdown, Entry{
		Factory: func() (Pair, error) {
			return Pair{Source: parser.NewMarkdownSource(), Fallback: parser.MarkdownMarkers()}, nil
		},
		Strategy: Strategy{NormalizeLabel: collapseSpace},
	})
	reg.Register(parser.TypeHTML, Entry{
		Factory: func() (Pair, error) {
			return Pair{Source: parser.NewHTMLSource()}, nil
		},
		Strategy: Strategy{NormalizeLabel: collapseSpace, Title: parser.HTMLTitle},
	})
	reg.Register(parser.TypeOrg, Entry{
		Factory: func() (Pair, error) {
			return Pair{Fallback: parser.OrgMarkers()}, nil
		},
		Strategy: Strategy{NormalizeLabel: orgLabel},
	})
	reg.Register(parser.TypeAsciiDoc, Entry{
		Factory: func() (Pair, error) {
			return Pair{Fallback: parser.AsciiDocMarkers()}, nil
		},
		Strategy: Strategy{NormalizeLabel: collapseSpace},
	})
	// Plain text has no structure to report.
	reg.Register(parser.TypePlainText, Entry{})

	for _, docType := range parser.CodeTypes() {
		docType := docType
		reg.Register(docType, Entry{
			Factory: func() (Pair, error) {
				src, err := parser.NewCodeSource(docType)
				if err != nil {
					return Pair{}, err
				}
				return Pair{Source: src}, nil
			},
		})
	}

	for _, cfg := range opts.LSPServers {
		if err := cfg.Validate(); err != nil {
			log.Warn("ignoring language server", "error", err)
			continue
		}
		for _, ext := range cfg.Extensions {
			parser.RegisterExtension(ext, cfg.Type)
		}
		builtin, _ := reg.Lookup(cfg.Type)
		cfg := cfg
		reg.Register(cfg.Type, Entry{
			Factory: func() (Pair, error) {
				return Pair{
					Source:   parser.NewLSPSource(cfg, log),
					Fallback: builtinFallback(builtin),
				}, nil
			},
			Strategy:   builtin.Strategy,
			AwaitReady: true,
		})
		log.Info("language server registered", "type", cfg.Type, "command", cfg.Command)
	}
	return reg
}

// builtinFallback turns a built-in entry into a fallback parser so a
// language server that is still starting never leaves the outline blank.
func builtinFallback(e Entry) FallbackParser {
	if e.Factory == nil {
		return nil
	}
	return FallbackFunc(func(text string) []doctree.Symbol {
		p, err := e.Factory()
		if err != nil {
			return nil
		}
		defer p.Close()
		if p.Source != nil {
			syms, err := p.Source.Symbols(context.Background(), textbuf.Snapshot{Text: text})
			if err == nil && len(syms) > 0 {
				return syms
			}
		}
		if p.Fallback != nil {
			return p.Fallback.Scan(text)
		}
		return nil
	})
}

func collapseSpace(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

var orgKeywords = []string{"TODO", "DONE", "NEXT", "WAITING", "CANCELLED"}

// orgLabel drops a leading TODO keyword and trailing :tags: from a headline.
func orgLabel(label string) string {
	label = collapseSpace(label)
	for _, kw := range orgKeywords {
		if rest, ok := strings.CutPrefix(label, kw+" "); ok {
			label = rest
			break
		}
	}
	if i := strings.LastIndexByte(label, ' '); i >= 0 {
		tags := label[i+1:]
		if len(tags) > 2 && strings.HasPrefix(tags, ":") && strings.HasSuffix(tags, ":") {
			label = strings.TrimSpace(label[:i])
		}
	}
	return label
}
