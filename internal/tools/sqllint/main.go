// Command sqllint checks that every SQL string constant opens with a unique
// "--sql <uuid>" marker, so SQLRunner can log it by id.
//
//	go run ./internal/tools/sqllint ./internal/sqlinline
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"stager/internal/sqlinline"
)

var sqlKeyword = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create|alter|drop)\b`)

type violation struct {
	pos     token.Position
	name    string
	message string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", v.pos.Filename, v.pos.Line, v.message, v.name)
}

type linter struct {
	fset  *token.FileSet
	seen  map[string]token.Position
	found []violation
}

func main() {
	flag.Parse()
	os.Exit(run(flag.Args(), os.Stderr))
}

func run(targets []string, stderr io.Writer) int {
	if len(targets) == 0 {
		targets = []string{"."}
	}
	l := &linter{fset: token.NewFileSet(), seen: map[string]token.Position{}}
	for _, target := range targets {
		if err := l.walk(target); err != nil {
			fmt.Fprintf(stderr, "sqllint: %v\n", err)
			return 2
		}
	}
	if len(l.found) == 0 {
		return 0
	}
	fmt.Fprintln(stderr, "sqllint: SQL marker violations")
	for _, v := range l.found {
		fmt.Fprintf(stderr, "  %s\n", v)
	}
	return 1
}

func (l *linter) walk(target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if filepath.Ext(target) != ".go" {
			return nil
		}
		return l.lintFile(target)
	}
	return filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		return l.lintFile(path)
	})
}

func (l *linter) lintFile(path string) error {
	file, err := parser.ParseFile(l.fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			raw, err := unquote(lit.Value)
			if err != nil || !sqlKeyword.MatchString(raw) {
				continue
			}
			l.check(specName(spec, i), raw, l.fset.Position(lit.Pos()))
		}
		return true
	})
	return nil
}

func (l *linter) check(name, raw string, pos token.Position) {
	id, ok := sqlinline.MarkerID(firstLine(raw))
	if !ok {
		l.found = append(l.found, violation{pos: pos, name: name, message: "missing or invalid --sql <uuid> marker"})
		return
	}
	if prev, dup := l.seen[id]; dup {
		l.found = append(l.found, violation{
			pos:     pos,
			name:    name,
			message: fmt.Sprintf("marker %s already used at %s:%d", id, prev.Filename, prev.Line),
		})
		return
	}
	l.seen[id] = pos
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return s[:idx]
	}
	return s
}

func unquote(v string) (string, error) {
	if strings.HasPrefix(v, "`") {
		return strings.Trim(v, "`"), nil
	}
	return strconv.Unquote(v)
}

func specName(spec *ast.ValueSpec, i int) string {
	if i < len(spec.Names) && spec.Names[i] != nil {
		return spec.Names[i].Name
	}
	return "_"
}
