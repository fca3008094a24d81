package hotswap

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// EndMarker stops preprocessing of a file; everything after it is dropped.
const EndMarker = "//hotswap:end"

// Source is a preprocessed unit: its import specs and its declarations.
type Source struct {
	Imports []string // import specs as written, e.g. `"fmt"` or `m "math"`
	Body    string
}

// Preprocess merges a header and an optional implementation into one
// Source. Package clauses are dropped, import declarations are split from
// the body and each file stops at EndMarker.
func Preprocess(header, impl string) Source {
	var src Source
	var body strings.Builder
	for _, file := range []string{header, impl} {
		if file == "" {
			continue
		}
		imports, rest := splitFile(file)
		for _, spec := range imports {
			if !slices.Contains(src.Imports, spec) {
				src.Imports = append(src.Imports, spec)
			}
		}
		if strings.TrimSpace(rest) == "" {
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(rest)
	}
	src.Body = body.String()
	return src
}

// AddImport appends spec unless it is already imported.
func (s *Source) AddImport(spec string) {
	if !slices.Contains(s.Imports, spec) {
		s.Imports = append(s.Imports, spec)
	}
}

// DropImport removes the imports bound to package name pkg, by alias or by
// the last element of their path.
func (s *Source) DropImport(pkg string) {
	s.Imports = slices.DeleteFunc(s.Imports, func(spec string) bool {
		return importName(spec) == pkg
	})
}

func importName(spec string) string {
	if alias, _, ok := strings.Cut(spec, " "); ok {
		if alias == "_" || alias == "." {
			return ""
		}
		return alias
	}
	path, err := strconv.Unquote(spec)
	if err != nil {
		return ""
	}
	return path[strings.LastIndex(path, "/")+1:]
}

// Wrap renders s as a compilable file in package namespace.
func (s Source) Wrap(namespace string) string {
	var b strings.Builder
	b.WriteString("package ")
	b.WriteString(namespace)
	b.WriteString("\n\n")
	if len(s.Imports) > 0 {
		b.WriteString("import (\n")
		for _, spec := range s.Imports {
			b.WriteString("\t")
			b.WriteString(spec)
			b.WriteString("\n")
		}
		b.WriteString(")\n\n")
	}
	b.WriteString(s.Body)
	if !strings.HasSuffix(s.Body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func splitFile(file string) (imports []string, body string) {
	var out strings.Builder
	inGroup := false
	for _, line := range strings.Split(file, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, EndMarker) {
			break
		}
		if inGroup {
			if strings.HasPrefix(trimmed, ")") {
				inGroup = false
				continue
			}
			if spec := importSpec(trimmed); spec != "" {
				imports = append(imports, spec)
			}
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "package "):
			continue
		case trimmed == "import (" || strings.HasPrefix(trimmed, "import ("):
			inGroup = true
			// A group may open and close on one line.
			inner := strings.TrimSpace(strings.TrimPrefix(trimmed, "import ("))
			if closed, ok := strings.CutSuffix(inner, ")"); ok {
				inGroup = false
				for _, part := range strings.Split(closed, ";") {
					if spec := importSpec(part); spec != "" {
						imports = append(imports, spec)
					}
				}
			} else if spec := importSpec(inner); spec != "" {
				imports = append(imports, spec)
			}
			continue
		case strings.HasPrefix(trimmed, "import "):
			if spec := importSpec(strings.TrimPrefix(trimmed, "import ")); spec != "" {
				imports = append(imports, spec)
			}
			continue
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	body = strings.Trim(out.String(), "\n")
	if body != "" {
		body += "\n"
	}
	return imports, body
}

// importSpec normalizes one import spec, dropping trailing comments.
func importSpec(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";"))
	if s == "" || !strings.Contains(s, `"`) {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}

// DeriveFromBase makes the first declaration of struct typeName embed the
// type of the same name from package base, ahead of any existing fields.
// It reports whether the declaration was found.
func DeriveFromBase(body, typeName, base string) (string, bool) {
	re := regexp.MustCompile(`(?m)^([ \t]*type\s+` + regexp.QuoteMeta(typeName) + `\s+struct\s*\{)`)
	loc := re.FindStringSubmatchIndex(body)
	if loc == nil {
		return body, false
	}
	end := loc[3]
	return body[:end] + "\n\t" + base + "." + typeName + "\n" + body[end:], true
}

// RenameIdent replaces every whole-identifier occurrence of name in code.
func RenameIdent(code, name, replacement string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	return re.ReplaceAllLiteralString(code, replacement)
}

// BaseNamespace is the package name holding the base generation of a type.
func BaseNamespace(typeName string) string {
	return strings.ToLower(typeName) + "_base"
}

// ImportOf renders the import spec of a namespace declared on a backend.
func ImportOf(namespace string) string {
	return strconv.Quote(namespace)
}

// Derive prepares src for compilation as a new generation of typeName in
// namespace: it imports the base namespace, embeds the base type and wraps
// the result.
func Derive(src Source, typeName, namespace string) (string, error) {
	base := BaseNamespace(typeName)
	body, ok := DeriveFromBase(src.Body, typeName, base)
	if !ok {
		return "", fmt.Errorf("no struct declaration for %s", typeName)
	}
	src.Body = body
	src.Imports = slices.Clone(src.Imports)
	src.AddImport(ImportOf(base))
	return src.Wrap(namespace), nil
}
