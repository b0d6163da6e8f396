package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// ForbiddenImports names import path roots a sandboxed strategy may never
// use: anything that reaches the filesystem, network, process control,
// serialization of arbitrary objects, reflection, or unsafe memory, which
// would let a strategy escape the sandbox's resource/permission boundary
// entirely. Matching is by root: "net" also denies "net/http".
var ForbiddenImports = []string{
	"os",
	"net",
	"syscall",
	"unsafe",
	"plugin",
	"reflect",
	"io/ioutil",
	"runtime/debug",
	"encoding/gob",
	"database/sql",
}

// ForbiddenBuiltins names identifiers that must never appear in the call
// position in sandboxed source — Go has no eval, but these are the closest
// equivalents to "arbitrary code execution" or "runtime escape hatch"
// available to a Go program.
var ForbiddenBuiltins = []string{
	"panic",
	"recover",
	"Goexit",
}

// ForbiddenSelectors names package.Symbol accesses denied even when the
// import somehow slipped past the root check (dot-imports, vendored
// aliases): the reflective and process-control surfaces.
var ForbiddenSelectors = []string{
	"reflect.ValueOf",
	"reflect.TypeOf",
	"runtime.Goexit",
	"debug.SetMaxStack",
}

// ForbiddenSubstringGroups buckets raw source substrings that are denied
// regardless of how they parse — catching string-based obfuscation of a
// forbidden capability. The group name is carried into the Violation so
// audit records say which capability class was attempted.
var ForbiddenSubstringGroups = map[string][]string{
	"filesystem": {
		"os.Open", "os.Create", "os.Remove", "os.ReadFile", "os.WriteFile",
		"ioutil.ReadFile", "ioutil.WriteFile", "filepath.Walk",
	},
	"network": {
		"net.Dial", "net.Listen", "http.Get", "http.Post", "http.Client",
		"websocket", "smtp.", "ftp.",
	},
	"system": {
		"exec.Command", "exec.CommandContext", "syscall.", "os.StartProcess",
		"go:linkname", "go:cgo_import",
	},
	"database": {
		"sql.Open", "pgx.Connect", "redis.NewClient", "mongo.Connect",
		"sqlite", "gorm.Open",
	},
}

// Violation is one static-analysis finding.
type Violation struct {
	Kind   string // "import", "builtin", "selector", or a substring group name
	Detail string
	Pos    token.Position
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: forbidden %s %q", v.Pos, v.Kind, v.Detail)
}

// Hard reports whether the violation is an AST deny-list hit (forbidden
// import, builtin, or selector). Hard violations abort a load
// unconditionally; only the substring pattern-check groups are subject to
// the loader's strict/lenient gate.
func (v Violation) Hard() bool {
	switch v.Kind {
	case "import", "builtin", "selector":
		return true
	}
	return false
}

// Analyze parses Go source and reports every forbidden import, forbidden
// builtin call, forbidden selector access, and forbidden substring found.
// An empty result means the source passed static analysis.
func Analyze(source []byte) ([]Violation, error) {
	var violations []Violation

	text := string(source)
	for group, subs := range ForbiddenSubstringGroups {
		for _, sub := range subs {
			if strings.Contains(text, sub) {
				violations = append(violations, Violation{Kind: group, Detail: sub})
			}
		}
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "strategy.go", source, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("sandbox: parse error: %w", err)
	}

	forbiddenBuiltinSet := make(map[string]bool, len(ForbiddenBuiltins))
	for _, b := range ForbiddenBuiltins {
		forbiddenBuiltinSet[b] = true
	}
	forbiddenSelectorSet := make(map[string]bool, len(ForbiddenSelectors))
	for _, s := range ForbiddenSelectors {
		forbiddenSelectorSet[s] = true
	}

	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if forbiddenImportRoot(path) {
			violations = append(violations, Violation{Kind: "import", Detail: path, Pos: fset.Position(imp.Pos())})
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.CallExpr:
			if ident, ok := node.Fun.(*ast.Ident); ok && forbiddenBuiltinSet[ident.Name] {
				violations = append(violations, Violation{Kind: "builtin", Detail: ident.Name, Pos: fset.Position(node.Pos())})
			}
		case *ast.SelectorExpr:
			if pkg, ok := node.X.(*ast.Ident); ok {
				full := pkg.Name + "." + node.Sel.Name
				if forbiddenSelectorSet[full] {
					violations = append(violations, Violation{Kind: "selector", Detail: full, Pos: fset.Position(node.Pos())})
				}
			}
		}
		return true
	})

	return violations, nil
}

// forbiddenImportRoot reports whether path's first segment is a forbidden
// root, so "net" denies "net/http" and "os" denies "os/exec".
func forbiddenImportRoot(path string) bool {
	for _, root := range ForbiddenImports {
		if path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}
