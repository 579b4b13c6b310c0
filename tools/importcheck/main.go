// Command importcheck keeps the decision core free of side effects.
//
// It scans the non-test Go files of the packages that decide admission and
// fails if any of them imports execution, storage or transport code.
//
// Usage:
//
//	go run ./tools/importcheck [-root <project-root>]
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// corePackages are the directories, relative to the root, whose files must
// stay pure. Subdirectories are included.
var corePackages = []string{
	"pkg/abiutil",
	"pkg/guard",
	"pkg/protocol",
	"pkg/reason",
	"pkg/whitelist",
}

// forbidden import paths. An entry ending in "/" matches any path with that
// prefix; anything else must match exactly.
var forbidden = []string{
	"github.com/Mindburn-Labs/assetguard/pkg/wallet",
	"github.com/Mindburn-Labs/assetguard/pkg/store",
	"github.com/Mindburn-Labs/assetguard/pkg/chain",
	"github.com/Mindburn-Labs/assetguard/pkg/gateway",
	"github.com/Mindburn-Labs/assetguard/pkg/server",
	"github.com/Mindburn-Labs/assetguard/pkg/client",
	"github.com/ethereum/go-ethereum/ethclient",
	"github.com/redis/go-redis/",
	"database/sql",
	"net/http",
	"os/exec",
}

// Violation is one forbidden import.
type Violation struct {
	File   string
	Line   int
	Import string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d imports %q", v.File, v.Line, v.Import)
}

func isForbidden(path string) bool {
	for _, f := range forbidden {
		if strings.HasSuffix(f, "/") {
			if strings.HasPrefix(path, f) || path == strings.TrimSuffix(f, "/") {
				return true
			}
			continue
		}
		if path == f || strings.HasPrefix(path, f+"/") {
			return true
		}
	}
	return false
}

// Scan walks the core packages under root and returns every violation.
// Missing package directories are skipped.
func Scan(root string) ([]Violation, error) {
	var out []Violation
	fset := token.NewFileSet()

	for _, pkg := range corePackages {
		dir := filepath.Join(root, filepath.FromSlash(pkg))
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}

			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			for _, imp := range f.Imports {
				p := strings.Trim(imp.Path.Value, `"`)
				if !isForbidden(p) {
					continue
				}
				rel, _ := filepath.Rel(root, path)
				out = append(out, Violation{
					File:   filepath.ToSlash(rel),
					Line:   fset.Position(imp.Pos()).Line,
					Import: p,
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("importcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", ".", "Project root directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	violations, err := Scan(*root)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, v := range violations {
		fmt.Fprintf(stdout, "IMPORT VIOLATION: %s\n", v)
	}
	if len(violations) > 0 {
		fmt.Fprintf(stdout, "\n%d import violation(s) found\n", len(violations))
		return 1
	}
	fmt.Fprintln(stdout, "import check passed: decision core has no side-effecting imports")
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
